package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/platform/lock"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
	"github.com/hanko-field/orderengine/internal/shipping"
)

const (
	testQuoteSecret   = "quote-secret"
	testPaymentSecret = "payment-secret"
)

type stubCarrier struct {
	mu    sync.Mutex
	calls int
	fn    func(context.Context, shipping.ServiceabilityRequest) (shipping.Serviceability, error)
}

func (s *stubCarrier) Serviceability(ctx context.Context, req shipping.ServiceabilityRequest) (shipping.Serviceability, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return recommend("c1"), nil
	}
	return fn(ctx, req)
}

func (s *stubCarrier) set(fn func(context.Context, shipping.ServiceabilityRequest) (shipping.Serviceability, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
}

func recommend(id string) shipping.Serviceability {
	return shipping.Serviceability{
		Couriers: []shipping.Courier{
			{ID: "c1", Name: "Fast", Rate: decimal.RequireFromString("60"), ETADays: 3},
			{ID: "c2", Name: "Cheap", Rate: decimal.RequireFromString("40"), ETADays: 6},
		},
		RecommendedCourierID: id,
	}
}

type stubPaymentGateway struct {
	createFn func(context.Context, payments.CreateOrderRequest) (payments.GatewayOrder, error)
	refundFn func(context.Context, payments.RefundRequest) (payments.RefundResult, error)

	mu      sync.Mutex
	orders  map[string]payments.GatewayOrder
	refunds []payments.RefundRequest
}

func (s *stubPaymentGateway) DefaultGateway() string { return "stripe" }

// CreateOrder opens pi_1, pi_2, ... and remembers them for FetchOrder.
func (s *stubPaymentGateway) CreateOrder(ctx context.Context, _ string, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders == nil {
		s.orders = make(map[string]payments.GatewayOrder)
	}
	order := payments.GatewayOrder{Gateway: "stripe", ID: fmt.Sprintf("pi_%d", len(s.orders)+1), Amount: req.Amount, Currency: req.Currency}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubPaymentGateway) FetchOrder(_ context.Context, _ string, id string) (payments.GatewayOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return payments.GatewayOrder{}, fmt.Errorf("stub: %w: %s", payments.ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *stubPaymentGateway) refundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

// flakyOrders fails Update calls chosen by failUpdate, numbered from 1.
type flakyOrders struct {
	repositories.OrderRepository

	mu         sync.Mutex
	updates    int
	failUpdate func(call int) error
}

func (f *flakyOrders) Update(ctx context.Context, order domain.Order) error {
	f.mu.Lock()
	f.updates++
	call, fail := f.updates, f.failUpdate
	f.mu.Unlock()
	if fail != nil {
		if err := fail(call); err != nil {
			return err
		}
	}
	return f.OrderRepository.Update(ctx, order)
}

func (f *flakyOrders) failOn(calls ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = 0
	f.failUpdate = func(call int) error {
		if slices.Contains(calls, call) {
			return errors.New("orders store unavailable")
		}
		return nil
	}
}

func (s *stubPaymentGateway) Refund(ctx context.Context, _ string, req payments.RefundRequest) (payments.RefundResult, error) {
	s.mu.Lock()
	s.refunds = append(s.refunds, req)
	s.mu.Unlock()
	if s.refundFn != nil {
		return s.refundFn(ctx, req)
	}
	return payments.RefundResult{ID: "re_1", Amount: req.Amount, Status: payments.RefundStatusSucceeded}, nil
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	noopMetrics
	mu             sync.Mutex
	created        int
	cancelled      int
	refundFailures int
	stockConflicts int
	quoteExpired   int
}

func (m *countingMetrics) OrderCreated(string) { m.mu.Lock(); m.created++; m.mu.Unlock() }
func (m *countingMetrics) OrderCancelled()     { m.mu.Lock(); m.cancelled++; m.mu.Unlock() }
func (m *countingMetrics) RefundFailed()       { m.mu.Lock(); m.refundFailures++; m.mu.Unlock() }
func (m *countingMetrics) StockConflict()      { m.mu.Lock(); m.stockConflicts++; m.mu.Unlock() }
func (m *countingMetrics) QuoteExpired()       { m.mu.Lock(); m.quoteExpired++; m.mu.Unlock() }

type engine struct {
	t        *testing.T
	store    *memory.Store
	orders   *flakyOrders
	carrier  *stubCarrier
	gateway  *stubPaymentGateway
	events   *captureOrderEvents
	metrics  *countingMetrics
	locker   *lock.MemoryLocker
	resolver *ShippingResolver
	svc      OrderService

	mu  sync.Mutex
	now time.Time
}

func (e *engine) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *engine) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	e := &engine{
		t:       t,
		store:   memory.NewStore(),
		carrier: &stubCarrier{},
		gateway: &stubPaymentGateway{},
		events:  &captureOrderEvents{},
		metrics: &countingMetrics{},
		locker:  lock.NewMemoryLocker(),
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	e.orders = &flakyOrders{OrderRepository: e.store.Orders()}
	seedCatalog(e.store)

	calculator, err := NewOrderCalculator(e.store.Products(), e.store.Carts(), 0.5)
	require.NoError(t, err)
	e.resolver, err = NewShippingResolver(ShippingResolverConfig{
		Carrier:               e.carrier,
		OriginPincode:         "110001",
		FreeShippingThreshold: decimal.RequireFromString("999"),
		FlatFee:               decimal.RequireFromString("49"),
		QuoteTTL:              15 * time.Minute,
		SigningSecret:         testQuoteSecret,
		Clock:                 e.clock,
	})
	require.NoError(t, err)
	inventory, err := NewInventoryService(e.store.Inventory(), nil)
	require.NoError(t, err)
	reconciler := NewPaymentReconciler(PaymentReconcilerConfig{
		Gateway:         e.gateway,
		SignatureSecret: testPaymentSecret,
		RefundTimeout:   time.Second,
		Clock:           e.clock,
	})

	e.svc, err = NewOrderService(OrderServiceDeps{
		Orders:             e.orders,
		Carts:              e.store.Carts(),
		Addresses:          e.store.Addresses(),
		Counters:           e.store.Counters(),
		Claims:             e.store.PaymentClaims(),
		UnitOfWork:         e.store,
		Calculator:         calculator,
		Shipping:           e.resolver,
		Inventory:          inventory,
		Payments:           reconciler,
		Locker:             e.locker,
		Events:             e.events,
		Metrics:            e.metrics,
		Currency:           "INR",
		TaxRate:            decimal.RequireFromString("0.05"),
		CancellationWindow: 24 * time.Hour,
		Clock:              e.clock,
	})
	require.NoError(t, err)
	return e
}

func seedCatalog(store *memory.Store) {
	store.PutProduct(domain.Product{
		ID:    "kurta",
		Name:  "Cotton Kurta",
		Image: "kurta.jpg",
		SKU:   "KRT",
		Variants: []domain.Variant{
			{ID: "red-m", Color: "Red", Size: "M", SKU: "KRT-RED-M", Price: decimal.RequireFromString("1000"), SellingPrice: decimal.RequireFromString("799.50"), WeightKg: 0.4, Stock: 10},
			{ID: "blue-l", Color: "Blue", Size: "L", SKU: "KRT-BLU-L", Price: decimal.RequireFromString("1000"), SellingPrice: decimal.RequireFromString("899"), WeightKg: 0.45, Stock: 5},
		},
	})
	store.PutProduct(domain.Product{
		ID:           "scarf",
		Name:         "Silk Scarf",
		SKU:          "SCF",
		Price:        decimal.RequireFromString("300"),
		SellingPrice: decimal.RequireFromString("300"),
		Stock:        1,
	})
	store.PutProduct(domain.Product{
		ID:           "recalled",
		Name:         "Recalled Lamp",
		Price:        decimal.RequireFromString("100"),
		SellingPrice: decimal.RequireFromString("100"),
		Stock:        100,
		Blacklisted:  true,
	})
	for _, uid := range []string{"u1", "u2"} {
		store.PutAddress(uid, domain.Address{ID: "home", Recipient: uid, Line1: "1 MG Road", City: "Bengaluru", Pincode: "560001", Country: "IN"})
	}
}

func user(id string) domain.Actor { return domain.Actor{ID: id, Role: domain.RoleUser} }

func admin() domain.Actor { return domain.Actor{ID: "ops-1", Role: domain.RoleAdmin} }

func (e *engine) preview(actor domain.Actor, sel *Selection, cod bool) CheckoutPreview {
	e.t.Helper()
	p, err := e.svc.PreviewCheckout(context.Background(), PreviewCheckoutCommand{Actor: actor, AddressID: "home", Selection: sel, COD: cod})
	require.NoError(e.t, err)
	return p
}

func (e *engine) createCOD(actor domain.Actor, sel *Selection) (domain.Order, error) {
	e.t.Helper()
	p := e.preview(actor, sel, true)
	return e.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:     actor,
		AddressID: "home",
		Selection: sel,
		Quote:     p.Quote,
		Payment:   PaymentInfo{Method: domain.PaymentMethodCOD},
	})
}

func (e *engine) createPrepaid(actor domain.Actor, sel *Selection) (domain.Order, error) {
	e.t.Helper()
	return e.payPrepaid(actor, sel, e.previewPrepaid(actor, sel), "ch_1")
}

func (e *engine) previewPrepaid(actor domain.Actor, sel *Selection) CheckoutPreview {
	e.t.Helper()
	p, err := e.svc.PreviewCheckout(context.Background(), PreviewCheckoutCommand{Actor: actor, AddressID: "home", Selection: sel, Prepaid: true})
	require.NoError(e.t, err)
	require.NotNil(e.t, p.PaymentOrder)
	return p
}

// payPrepaid creates an order paid by paymentID against the gateway order opened for p.
func (e *engine) payPrepaid(actor domain.Actor, sel *Selection, p CheckoutPreview, paymentID string) (domain.Order, error) {
	e.t.Helper()
	return e.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:     actor,
		AddressID: "home",
		Selection: sel,
		Quote:     p.Quote,
		Payment: PaymentInfo{
			Method:           domain.PaymentMethodPrepaid,
			GatewayOrderID:   p.PaymentOrder.ID,
			GatewayPaymentID: paymentID,
			Signature:        payments.SignPayment(testPaymentSecret, p.PaymentOrder.ID, paymentID),
		},
	})
}

func (e *engine) variant(productID, variantID string) domain.Variant {
	e.t.Helper()
	product, err := e.store.Products().Get(context.Background(), productID)
	require.NoError(e.t, err)
	v, ok := product.Variant(variantID)
	require.True(e.t, ok)
	return v
}

func (e *engine) product(productID string) domain.Product {
	e.t.Helper()
	product, err := e.store.Products().Get(context.Background(), productID)
	require.NoError(e.t, err)
	return product
}

func kindOf(t *testing.T, err error, kind error) *Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	return svcErr
}
