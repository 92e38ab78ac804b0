package services

import (
	"errors"
	"fmt"

	"github.com/hanko-field/orderengine/internal/repositories"
)

// Error kinds returned by the engine. Match them with errors.Is.
var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not_found")
	ErrUnavailable       = errors.New("unavailable")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrVariantRequired   = errors.New("variant_required")
	ErrQuoteExpired      = errors.New("quote_expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrExternalService   = errors.New("external_service")
	ErrInternal          = errors.New("internal")
)

// Error is the structured failure every engine operation returns. Details carries machine readable
// context such as the available quantity of a stock conflict.
type Error struct {
	Kind    error
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return e != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of err, or ErrInternal when err is not an engine error.
func KindOf(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Kind != nil {
		return svcErr.Kind
	}
	return ErrInternal
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) with(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func (e *Error) wrap(err error) *Error {
	e.Err = err
	return e
}

// mapRepositoryError classifies persistence failures. Engine errors pass through untouched.
func mapRepositoryError(err error, what string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return mapInventoryError(invErr)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return newError(ErrNotFound, "%s not found", what).wrap(err)
		case repoErr.IsConflict():
			return newError(ErrConflict, "%s was modified concurrently", what).wrap(err)
		case repoErr.IsUnavailable():
			return newError(ErrExternalService, "%s store unavailable", what).wrap(err)
		}
	}
	return newError(ErrInternal, "%s", what).wrap(err)
}

func mapInventoryError(err *repositories.InventoryError) error {
	switch err.Code {
	case repositories.InventoryErrorInsufficientStock:
		return newError(ErrInsufficientStock, "insufficient stock for %s", err.Ref).
			with("productId", err.Ref.ProductID).
			with("variantId", err.Ref.VariantID).
			with("requested", err.Requested).
			with("available", err.Available).
			wrap(err)
	case repositories.InventoryErrorStockNotFound:
		return newError(ErrNotFound, "stock unit %s not found", err.Ref).
			with("productId", err.Ref.ProductID).
			with("variantId", err.Ref.VariantID).
			wrap(err)
	case repositories.InventoryErrorUnavailable:
		return newError(ErrUnavailable, "product %s is unavailable", err.Ref.ProductID).
			with("productId", err.Ref.ProductID).
			wrap(err)
	case repositories.InventoryErrorInvalidMutation:
		return newError(ErrValidation, "%s", err.Message).wrap(err)
	default:
		return newError(ErrInternal, "inventory update failed").wrap(err)
	}
}
