package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/shipping"
)

func newResolver(t *testing.T, carrier CarrierClient, now *time.Time) *ShippingResolver {
	t.Helper()
	r, err := NewShippingResolver(ShippingResolverConfig{
		Carrier:               carrier,
		OriginPincode:         "110001",
		FreeShippingThreshold: decimal.RequireFromString("999"),
		FlatFee:               decimal.RequireFromString("49"),
		SigningSecret:         testQuoteSecret,
		Clock:                 func() time.Time { return *now },
	})
	require.NoError(t, err)
	return r
}

func TestResolverQuotesRecommendedCourier(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	carrier := &stubCarrier{}
	var got shipping.ServiceabilityRequest
	carrier.set(func(_ context.Context, req shipping.ServiceabilityRequest) (shipping.Serviceability, error) {
		got = req
		return recommend("c2"), nil
	})
	r := newResolver(t, carrier, &now)

	q, err := r.Quote(context.Background(), QuoteRequest{DeliveryPincode: " 560001 ", WeightKg: 1.2345, COD: true, Subtotal: decimal.NewFromInt(100)})
	require.NoError(t, err)

	assert.Equal(t, "c2", q.CourierID)
	assert.Equal(t, "Cheap", q.CourierName)
	assert.True(t, q.ShippingCharge.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "2026-03-07", q.EstimatedDelivery)
	assert.Equal(t, 1.235, q.WeightKg)
	assert.Equal(t, now.Add(defaultQuoteTTL), q.ExpiresAt)
	assert.NotEmpty(t, q.Token)
	assert.False(t, q.Fallback)

	assert.Equal(t, "110001", got.PickupPincode)
	assert.Equal(t, "560001", got.DeliveryPincode)
	assert.True(t, got.COD)

	require.NoError(t, r.Revalidate(context.Background(), q, QuoteRequest{DeliveryPincode: "560001", WeightKg: 1.2349, COD: true}))
}

func TestResolverFallbackPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	down := &stubCarrier{}
	down.set(func(context.Context, shipping.ServiceabilityRequest) (shipping.Serviceability, error) {
		return shipping.Serviceability{}, errors.New("503")
	})

	for _, carrier := range []CarrierClient{down, nil} {
		r := newResolver(t, carrier, &now)

		cheap, err := r.Quote(context.Background(), QuoteRequest{DeliveryPincode: "560001", WeightKg: 1, Subtotal: decimal.RequireFromString("998.99")})
		require.NoError(t, err)
		assert.True(t, cheap.Fallback)
		assert.True(t, cheap.ShippingCharge.Equal(decimal.NewFromInt(49)))

		// free shipping starts strictly above the threshold
		atThreshold, err := r.Quote(context.Background(), QuoteRequest{DeliveryPincode: "560001", WeightKg: 1, Subtotal: decimal.RequireFromString("999")})
		require.NoError(t, err)
		assert.True(t, atThreshold.ShippingCharge.Equal(decimal.NewFromInt(49)))

		free, err := r.Quote(context.Background(), QuoteRequest{DeliveryPincode: "560001", WeightKg: 1, Subtotal: decimal.RequireFromString("999.01")})
		require.NoError(t, err)
		assert.True(t, free.ShippingCharge.IsZero())

		// fallback quotes do not consult the carrier again
		require.NoError(t, r.Revalidate(context.Background(), free, QuoteRequest{DeliveryPincode: "560001", WeightKg: 1}))
	}
}

func TestResolverRevalidateRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	carrier := &stubCarrier{}
	r := newResolver(t, carrier, &now)
	req := QuoteRequest{DeliveryPincode: "560001", WeightKg: 0.8}
	q, err := r.Quote(context.Background(), req)
	require.NoError(t, err)

	tampered := q
	tampered.CourierID = "c2"
	kindOf(t, r.Revalidate(context.Background(), tampered, req), ErrQuoteExpired)

	for _, edit := range []func(*domain.ShippingQuote){
		func(q *domain.ShippingQuote) { q.CourierName = "Overnight Express" },
		func(q *domain.ShippingQuote) { q.EstimatedDelivery = "2026-03-02" },
		func(q *domain.ShippingQuote) { q.QuotedAt = q.QuotedAt.Add(-time.Hour) },
	} {
		edited := q
		edit(&edited)
		kindOf(t, r.Revalidate(context.Background(), edited, req), ErrQuoteExpired)
	}

	unsigned := q
	unsigned.Token = ""
	kindOf(t, r.Revalidate(context.Background(), unsigned, req), ErrQuoteExpired)

	kindOf(t, r.Revalidate(context.Background(), q, QuoteRequest{DeliveryPincode: "400001", WeightKg: 0.8}), ErrQuoteExpired)
	kindOf(t, r.Revalidate(context.Background(), q, QuoteRequest{DeliveryPincode: "560001", WeightKg: 1.2}), ErrQuoteExpired)

	carrier.set(func(context.Context, shipping.ServiceabilityRequest) (shipping.Serviceability, error) {
		return shipping.Serviceability{}, errors.New("timeout")
	})
	kindOf(t, r.Revalidate(context.Background(), q, req), ErrExternalService)

	carrier.set(nil)
	now = now.Add(defaultQuoteTTL)
	kindOf(t, r.Revalidate(context.Background(), q, req), ErrQuoteExpired)
}

func TestResolverRequiresSecret(t *testing.T) {
	_, err := NewShippingResolver(ShippingResolverConfig{})
	require.Error(t, err)

	_, err = NewShippingResolver(ShippingResolverConfig{SigningSecret: "s", Carrier: &stubCarrier{}})
	require.Error(t, err)
}
