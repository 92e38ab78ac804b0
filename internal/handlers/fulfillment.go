package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/textutil"
	"github.com/hanko-field/orderengine/internal/services"
)

const (
	maxTransitionBodySize = 8 * 1024
	maxWebhookBodySize    = 16 * 1024
	carrierActorID        = "carrier-webhook"
)

// carrierStatuses maps carrier tracking states onto order statuses. Unlisted states are acknowledged and ignored.
var carrierStatuses = map[string]domain.OrderStatus{
	"picked_up":  domain.OrderStatusShipped,
	"shipped":    domain.OrderStatusShipped,
	"in_transit": domain.OrderStatusShipped,
	"delivered":  domain.OrderStatusDelivered,
}

// FulfillmentHandlers serves status transitions from fulfillment systems and carrier callbacks.
type FulfillmentHandlers struct {
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	logger      *zap.Logger
}

// FulfillmentOption customises FulfillmentHandlers.
type FulfillmentOption func(*FulfillmentHandlers)

// WithFulfillmentIdempotency guards the internal transition route with the given middleware.
func WithFulfillmentIdempotency(mw func(http.Handler) http.Handler) FulfillmentOption {
	return func(h *FulfillmentHandlers) {
		h.idempotency = mw
	}
}

// WithFulfillmentLogger sets the logger used for ignored carrier callbacks.
func WithFulfillmentLogger(logger *zap.Logger) FulfillmentOption {
	return func(h *FulfillmentHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewFulfillmentHandlers constructs a new FulfillmentHandlers instance.
func NewFulfillmentHandlers(orders services.OrderService, opts ...FulfillmentOption) *FulfillmentHandlers {
	h := &FulfillmentHandlers{orders: orders, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// InternalRoutes registers /internal endpoints. Authentication is applied by the router group.
func (h *FulfillmentHandlers) InternalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.idempotency != nil {
		r = r.With(h.idempotency)
	}
	r.Post("/orders/{orderID}:transition", h.transition)
}

// WebhookRoutes registers /webhooks endpoints. Signature checks are applied by the router group.
func (h *FulfillmentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/carrier", h.carrierWebhook)
}

type transitionRequest struct {
	Status string         `json:"status"`
	Reason string         `json:"reason"`
	AWB    string         `json:"awb"`
	Meta   map[string]any `json:"meta"`
}

func (h *FulfillmentHandlers) transition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service identity required", http.StatusUnauthorized))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req, maxTransitionBodySize); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		To:      domain.OrderStatus(req.Status),
		Reason:  req.Reason,
		AWB:     req.AWB,
		Meta:    req.Meta,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderFromDomain(order))
}

type carrierWebhookRequest struct {
	OrderID   string `json:"orderId"`
	AWB       string `json:"awb"`
	Status    string `json:"status"`
	EventTime string `json:"eventTime"`
	Note      string `json:"note"`
}

type carrierWebhookResponse struct {
	Result  string `json:"result"`
	OrderID string `json:"orderId"`
	Status  string `json:"status,omitempty"`
}

func (h *FulfillmentHandlers) carrierWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req carrierWebhookRequest
	if err := httpx.DecodeJSON(r, &req, maxWebhookBodySize); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}
	carrierStatus := strings.ToLower(strings.TrimSpace(req.Status))
	target, ok := carrierStatuses[carrierStatus]
	if !ok {
		h.logger.Info("carrier webhook ignored", zap.String("orderId", orderID), zap.String("carrierStatus", carrierStatus))
		httpx.WriteJSON(w, http.StatusAccepted, carrierWebhookResponse{Result: "ignored", OrderID: orderID})
		return
	}

	meta := map[string]any{"carrierStatus": carrierStatus}
	if eventTime := strings.TrimSpace(req.EventTime); eventTime != "" {
		meta["carrierEventTime"] = textutil.SanitizeText(eventTime, 64)
	}
	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		Actor:   domain.SystemActor(carrierActorID),
		OrderID: orderID,
		To:      target,
		Reason:  textutil.SanitizeText(req.Note, 200),
		AWB:     req.AWB,
		Meta:    meta,
	})
	switch {
	case errors.Is(err, services.ErrConflict):
		// carriers redeliver callbacks; a status the order already passed is acknowledged
		h.logger.Info("carrier webhook out of order", zap.String("orderId", orderID), zap.String("target", string(target)), zap.Error(err))
		httpx.WriteJSON(w, http.StatusOK, carrierWebhookResponse{Result: "ignored", OrderID: orderID})
		return
	case err != nil:
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, carrierWebhookResponse{Result: "applied", OrderID: order.ID, Status: string(order.Status)})
}
