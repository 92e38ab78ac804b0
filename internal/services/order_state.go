package services

import (
	"maps"
	"slices"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
}

// deductingStatuses convert holds into a physical deduction on first entry.
var deductingStatuses = []domain.OrderStatus{
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
}

func knownStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func initialStatus(payment domain.PaymentStatus) domain.OrderStatus {
	if payment == domain.PaymentStatusPaid {
		return domain.OrderStatusConfirmed
	}
	return domain.OrderStatusPending
}

// appendStatus moves the order to status and records the history entry. History is append-only.
func appendStatus(order *domain.Order, status domain.OrderStatus, actorID string, now time.Time, reason string, meta map[string]any) {
	entry := domain.StatusChange{
		Status:    status,
		ChangedBy: actorID,
		ChangedAt: now,
		Reason:    reason,
	}
	if len(meta) > 0 {
		entry.Meta = maps.Clone(meta)
	}
	order.Status = status
	order.UpdatedAt = now
	order.StatusHistory = append(slices.Clip(order.StatusHistory), entry)
}

// checkCancellable enforces the cancellation rules. Non-admin actors are limited to window after creation.
func checkCancellable(order domain.Order, actor domain.Actor, now time.Time, window time.Duration) error {
	if order.Status == domain.OrderStatusCancelled {
		return newError(ErrConflict, "order %s is already cancelled", order.ID).with("reason", "already_cancelled")
	}
	if order.ShippingMeta.ShippedAt != nil {
		return newError(ErrConflict, "order %s has been shipped", order.ID).with("reason", "already_shipped")
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return newError(ErrConflict, "order %s cannot be cancelled in status %s", order.ID, order.Status).
			with("reason", "status_not_cancellable").
			with("status", string(order.Status))
	}
	if !actor.IsAdmin() && window > 0 && now.Sub(order.CreatedAt) > window {
		return newError(ErrConflict, "order %s is past the cancellation window", order.ID).
			with("reason", "cancellation_window_elapsed")
	}
	return nil
}
