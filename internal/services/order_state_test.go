package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed}:    true,
		{domain.OrderStatusPending, domain.OrderStatusCancelled}:    true,
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing}: true,
		{domain.OrderStatusConfirmed, domain.OrderStatusShipped}:    true,
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled}:  true,
		{domain.OrderStatusProcessing, domain.OrderStatusShipped}:   true,
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled}: true,
		{domain.OrderStatusShipped, domain.OrderStatusDelivered}:    true,
	}
	all := []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]domain.OrderStatus{from, to}], canTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAppendStatusKeepsHistoryImmutable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := domain.Order{}
	appendStatus(&order, domain.OrderStatusPending, "u1", now, "placed", nil)
	earlier := order.StatusHistory

	meta := map[string]any{"k": "v"}
	appendStatus(&order, domain.OrderStatusConfirmed, "ops-1", now.Add(time.Minute), "", meta)
	meta["k"] = "changed"

	assert.Len(t, earlier, 1)
	assert.Len(t, order.StatusHistory, 2)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, now.Add(time.Minute), order.UpdatedAt)
	assert.Equal(t, "v", order.StatusHistory[1].Meta["k"])
	assert.Nil(t, order.StatusHistory[0].Meta)
}

func TestCheckCancellable(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	shippedAt := created.Add(time.Hour)
	window := 24 * time.Hour

	cases := []struct {
		name   string
		order  domain.Order
		actor  domain.Actor
		at     time.Time
		reason string
	}{
		{name: "pending owner", order: domain.Order{Status: domain.OrderStatusPending, CreatedAt: created}, actor: user("u1"), at: created.Add(time.Hour)},
		{name: "processing owner", order: domain.Order{Status: domain.OrderStatusProcessing, CreatedAt: created}, actor: user("u1"), at: created.Add(time.Hour)},
		{name: "cancelled", order: domain.Order{Status: domain.OrderStatusCancelled, CreatedAt: created}, actor: admin(), at: created, reason: "already_cancelled"},
		{name: "shipped", order: domain.Order{Status: domain.OrderStatusShipped, CreatedAt: created, ShippingMeta: domain.ShippingMeta{ShippedAt: &shippedAt}}, actor: admin(), at: created, reason: "already_shipped"},
		{name: "delivered", order: domain.Order{Status: domain.OrderStatusDelivered, CreatedAt: created}, actor: admin(), at: created, reason: "status_not_cancellable"},
		{name: "window elapsed", order: domain.Order{Status: domain.OrderStatusPending, CreatedAt: created}, actor: user("u1"), at: created.Add(window + time.Second), reason: "cancellation_window_elapsed"},
		{name: "admin past window", order: domain.Order{Status: domain.OrderStatusConfirmed, CreatedAt: created}, actor: admin(), at: created.Add(72 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkCancellable(tc.order, tc.actor, tc.at, window)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			svcErr := kindOf(t, err, ErrConflict)
			assert.Equal(t, tc.reason, svcErr.Details["reason"])
		})
	}
}
