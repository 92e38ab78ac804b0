package di

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/health"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
	"github.com/hanko-field/orderengine/internal/services"
)

func memoryConfig() config.Config {
	return config.Config{
		Store: config.StoreConfig{Backend: config.BackendMemory},
		Checkout: config.CheckoutConfig{
			Currency:              "INR",
			OriginPincode:         "110001",
			DefaultWeightKg:       0.5,
			FreeShippingThreshold: decimal.RequireFromString("999"),
			FlatShippingFee:       decimal.RequireFromString("49"),
			TaxRate:               decimal.RequireFromString("0.05"),
			QuoteTTL:              15 * time.Minute,
			QuoteSigningSecret:    "quote-secret",
			CancellationWindow:    24 * time.Hour,
			OrderNumberPrefix:     "ORD",
		},
		Carrier:     config.CarrierConfig{Timeout: time.Second},
		Payments:    config.PaymentsConfig{Gateway: "sandbox", SignatureSecret: "payment-secret", RefundTimeout: time.Second},
		Events:      config.EventsConfig{Sink: config.EventsSinkNone},
		Locks:       config.LockConfig{Backend: config.BackendMemory, TTL: 5 * time.Second},
		Idempotency: config.IdempotencyConfig{Backend: config.BackendMemory, Header: "Idempotency-Key", TTL: time.Hour, CleanupBatchSize: 10},
	}
}

func TestContainerRunsPrepaidOrderRoundTrip(t *testing.T) {
	store := memory.NewStore()
	store.PutProduct(domain.Product{
		ID: "mug", Name: "Clay Mug",
		Price: decimal.RequireFromString("600"), SellingPrice: decimal.RequireFromString("500"),
		Stock: 4,
	})
	store.PutAddress("u1", domain.Address{ID: "home", Recipient: "u1", Line1: "1 MG Road", City: "Bengaluru", Pincode: "560001", Country: "IN"})

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c, err := NewContainer(context.Background(), memoryConfig(), nil, WithRegistry(store), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NotNil(t, c.Idempotency)
	report := c.Health.Run(context.Background())
	assert.Equal(t, health.StatusOK, report.Status)
	assert.Contains(t, report.Checks, "store")

	ctx := context.Background()
	actor := domain.Actor{ID: "u1", Role: domain.RoleUser}
	selection := &services.Selection{ProductID: "mug", Quantity: 1}

	preview, err := c.Orders.PreviewCheckout(ctx, services.PreviewCheckoutCommand{Actor: actor, AddressID: "home", Selection: selection, Prepaid: true})
	require.NoError(t, err)
	assert.True(t, preview.Quote.Fallback, "no carrier configured")
	assert.Equal(t, "49", preview.Quote.ShippingCharge.String())
	assert.Equal(t, "574", preview.Pricing.TotalAmount.String())
	require.NotNil(t, preview.PaymentOrder)
	assert.Equal(t, "sandbox", preview.PaymentOrder.Gateway)

	order, err := c.Orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:     actor,
		AddressID: "home",
		Selection: selection,
		Quote:     preview.Quote,
		Payment: services.PaymentInfo{
			Method:           domain.PaymentMethodPrepaid,
			Gateway:          "sandbox",
			GatewayOrderID:   preview.PaymentOrder.ID,
			GatewayPaymentID: "pay_1",
			Signature:        payments.SignPayment("payment-secret", preview.PaymentOrder.ID, "pay_1"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "ORD-20260301-000001", order.OrderNumber)

	product, err := store.Products().Get(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, 1, product.ReservedStock)

	res, err := c.Orders.CancelOrder(ctx, services.CancelOrderCommand{Actor: actor, OrderID: order.ID, Reason: "ordered twice"})
	require.NoError(t, err)
	require.NotNil(t, res.Refund)
	assert.Equal(t, domain.RefundStatusProcessed, res.Refund.Status)
	assert.True(t, res.Refund.Amount.Equal(order.Pricing.TotalAmount))
	assert.Equal(t, domain.PaymentStatusRefunded, res.Order.PaymentStatus)

	product, err = store.Products().Get(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, 0, product.ReservedStock)
	assert.Equal(t, 4, product.Stock)
}

func TestContainerRejectsUnknownBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"store":       func(c *config.Config) { c.Store.Backend = "cassandra" },
		"idempotency": func(c *config.Config) { c.Idempotency.Backend = "etcd" },
		"events":      func(c *config.Config) { c.Events.Sink = "nats" },
		"payments":    func(c *config.Config) { c.Payments.Gateway = "paypal" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := memoryConfig()
			mutate(&cfg)
			c, err := NewContainer(context.Background(), cfg, nil)
			require.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestContainerRequiresStripeKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.Payments.Gateway = "stripe"
	_, err := NewContainer(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe")
}
