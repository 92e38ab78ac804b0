package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/services"
)

type errorMapping struct {
	code   string
	status int
}

var serviceErrorMappings = []struct {
	kind error
	errorMapping
}{
	{services.ErrValidation, errorMapping{"invalid_request", http.StatusBadRequest}},
	{services.ErrNotFound, errorMapping{"not_found", http.StatusNotFound}},
	{services.ErrInsufficientStock, errorMapping{"insufficient_stock", http.StatusConflict}},
	{services.ErrQuoteExpired, errorMapping{"quote_expired", http.StatusConflict}},
	{services.ErrConflict, errorMapping{"conflict", http.StatusConflict}},
	{services.ErrVariantRequired, errorMapping{"variant_required", http.StatusUnprocessableEntity}},
	{services.ErrUnavailable, errorMapping{"product_unavailable", http.StatusUnprocessableEntity}},
	{services.ErrUnauthorized, errorMapping{"forbidden", http.StatusForbidden}},
	{services.ErrExternalService, errorMapping{"upstream_unavailable", http.StatusBadGateway}},
}

// writeServiceError renders engine errors with their details. Internal failures never leak their message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
		return
	}
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.kind) {
			httpx.WriteError(ctx, w, httpx.NewError(m.code, svcErr.Message, m.status).WithDetails(svcErr.Details))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", status))
}
