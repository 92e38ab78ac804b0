package repositories

import (
	"fmt"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// InventoryErrorCode says why a stock mutation was refused. The service layer maps codes onto API errors.
type InventoryErrorCode string

const (
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	InventoryErrorStockNotFound     InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorUnavailable is a reservation against a blacklisted product.
	InventoryErrorUnavailable     InventoryErrorCode = "inventory_unavailable"
	InventoryErrorInvalidMutation InventoryErrorCode = "inventory_invalid_mutation"
	// InventoryErrorInvariant means the batch would leave counters inconsistent. Nothing was written.
	InventoryErrorInvariant InventoryErrorCode = "inventory_invariant_violated"
)

// InventoryError is returned by ApplyStockMutations and the inventory repositories. The whole batch is
// rejected when any mutation fails.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	Ref       domain.StockRef
	Requested int
	Available int
	Err       error
}

func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func stockError(code InventoryErrorCode, ref domain.StockRef, format string, args ...any) *InventoryError {
	return &InventoryError{Code: code, Ref: ref, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports that ref has fewer sellable units than requested.
func InsufficientStockError(ref domain.StockRef, requested, available int) *InventoryError {
	available = max(available, 0)
	err := stockError(InventoryErrorInsufficientStock, ref,
		"insufficient stock for %s: requested %d, available %d", ref, requested, available)
	err.Requested, err.Available = requested, available
	return err
}

// StockNotFoundError reports a missing product or variant.
func StockNotFoundError(ref domain.StockRef) *InventoryError {
	return stockError(InventoryErrorStockNotFound, ref, "stock unit %s not found", ref)
}
