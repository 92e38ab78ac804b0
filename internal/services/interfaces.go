package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/payments"
)

// OrderService is the engine's command surface. Every command carries the caller as an explicit Actor.
type OrderService interface {
	PreviewCheckout(ctx context.Context, cmd PreviewCheckoutCommand) (CheckoutPreview, error)
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
}

// Selection is a "buy now" request for a single product. A nil selection means cart checkout.
type Selection struct {
	ProductID string
	VariantID string
	Color     string
	Size      string
	Quantity  int
}

// PaymentInfo is what the client reports about payment at order creation.
type PaymentInfo struct {
	Method           domain.PaymentMethod
	Gateway          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// PreviewCheckoutCommand prices a checkout and locks a shipping quote without writing anything.
type PreviewCheckoutCommand struct {
	Actor     domain.Actor
	AddressID string
	Selection *Selection
	COD       bool
	Prepaid   bool
}

// CheckoutPreview is the priced checkout plus the locked quote the client must echo back on create.
type CheckoutPreview struct {
	Items        []domain.OrderItem
	Summary      CalculationSummary
	Pricing      domain.Pricing
	Currency     string
	Quote        domain.ShippingQuote
	PaymentOrder *payments.GatewayOrder
}

// CreateOrderCommand turns a selection or the caller's cart into an order.
type CreateOrderCommand struct {
	Actor     domain.Actor
	AddressID string
	Selection *Selection
	Quote     domain.ShippingQuote
	Payment   PaymentInfo
}

// CancelOrderCommand cancels an order and reverses its stock and payment.
type CancelOrderCommand struct {
	Actor   domain.Actor
	OrderID string
	Reason  string
}

// CancelOrderResult reports the compensating actions taken. Warnings carries the non-fatal refund failure.
type CancelOrderResult struct {
	Order         domain.Order
	CancelledAt   time.Time
	StockRestored []domain.StockAdjustment
	Refund        *domain.Refund
	Warnings      []string
}

// TransitionOrderCommand moves an order along its fulfillment path. AWB applies to SHIPPED.
type TransitionOrderCommand struct {
	Actor   domain.Actor
	OrderID string
	To      domain.OrderStatus
	Reason  string
	AWB     string
	Meta    map[string]any
}

// CalculationSummary aggregates the priced lines.
type CalculationSummary struct {
	Subtotal      decimal.Decimal
	MRPTotal      decimal.Decimal
	Discount      decimal.Decimal
	TotalWeightKg float64
	ItemCount     int
	TotalQuantity int
}

// OrderMetrics records the engine's operational markers.
type OrderMetrics interface {
	OrderCreated(paymentStatus string)
	OrderCancelled()
	RefundFailed()
	StockConflict()
	QuoteExpired()
	StatusTransitioned(to string)
	ObserveCheckout(outcome string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) OrderCreated(string)                   {}
func (noopMetrics) OrderCancelled()                       {}
func (noopMetrics) RefundFailed()                         {}
func (noopMetrics) StockConflict()                        {}
func (noopMetrics) QuoteExpired()                         {}
func (noopMetrics) StatusTransitioned(string)             {}
func (noopMetrics) ObserveCheckout(string, time.Duration) {}
