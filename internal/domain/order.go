package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus enumerates the payment states of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod distinguishes cash-on-delivery from gateway-backed orders.
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodPrepaid PaymentMethod = "PREPAID"
)

// RefundStatus enumerates the refund outcomes recorded on a cancelled order.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusProcessed RefundStatus = "PROCESSED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Order is the durable output of the create workflow.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Items         []OrderItem
	Pricing       Pricing
	Currency      string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Payment       PaymentReference
	ShippingMeta  ShippingMeta
	Address       Address
	StatusHistory []StatusChange
	Cancellation  *Cancellation
	Refund        *Refund
	StockDeducted bool
	FromCart      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem snapshots everything needed to invoice a line independently of later catalog edits.
type OrderItem struct {
	ProductID        string
	VariantID        string
	Name             string
	Image            string
	SKU              string
	Color            string
	Size             string
	Quantity         int
	UnitPrice        decimal.Decimal
	UnitSellingPrice decimal.Decimal
	UnitDiscount     decimal.Decimal
	DiscountPercent  decimal.Decimal
	LineSubtotal     decimal.Decimal
	LineWeightKg     float64
}

// StockRef returns the inventory reference of the line.
func (i OrderItem) StockRef() StockRef {
	return StockRef{ProductID: i.ProductID, VariantID: i.VariantID}
}

// Pricing is the order's monetary breakdown.
type Pricing struct {
	MRPTotal       decimal.Decimal
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	ShippingCharge decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

// PaymentReference records the gateway identifiers of a prepaid order.
type PaymentReference struct {
	Method           PaymentMethod
	Gateway          string
	GatewayOrderID   string
	GatewayPaymentID string
	// Amount and Currency are what the gateway order was opened for, empty when it was never looked up.
	Amount     decimal.Decimal
	Currency   string
	VerifiedAt *time.Time
}

// ShippingQuote is a courier selection locked at checkout preview.
type ShippingQuote struct {
	ShippingCharge    decimal.Decimal
	CourierID         string
	CourierName       string
	EstimatedDelivery string
	DeliveryPincode   string
	WeightKg          float64
	Fallback          bool
	QuotedAt          time.Time
	ExpiresAt         time.Time
	Token             string
}

// ShippingMeta is the quote embedded in the order plus carrier progress markers.
type ShippingMeta struct {
	Quote       ShippingQuote
	AWB         string
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// StatusChange is one immutable statusHistory entry.
type StatusChange struct {
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
	Reason    string
	Meta      map[string]any
}

// Cancellation records who cancelled the order and what was undone.
type Cancellation struct {
	CancelledBy   string
	CancelledAt   time.Time
	Reason        string
	StockRestored []StockAdjustment
}

// StockAdjustment summarises the compensating stock change applied to one line.
type StockAdjustment struct {
	ProductID string
	VariantID string
	Released  int
	Restored  int
}

// Refund is the durable refund marker. NeedsManualAction is set whenever the refund failed.
type Refund struct {
	RefundID          string
	Amount            decimal.Decimal
	Status            RefundStatus
	InitiatedAt       time.Time
	CompletedAt       *time.Time
	FailureReason     string
	NeedsManualAction bool
}

// HoldsReservation reports whether the order's lines are still counted in reservedStock.
func (o Order) HoldsReservation() bool {
	if o.StockDeducted {
		return false
	}
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// IsGatewayPaid reports whether a refund through the gateway applies on cancellation.
func (o Order) IsGatewayPaid() bool {
	return o.Payment.Method == PaymentMethodPrepaid && o.PaymentStatus == PaymentStatusPaid
}

// PaymentClaim records that a gateway payment settled one order.
type PaymentClaim struct {
	Gateway          string
	GatewayPaymentID string
	OrderID          string
	Amount           decimal.Decimal
	ClaimedAt        time.Time
}

// Key identifies the payment across gateways.
func (c PaymentClaim) Key() string {
	return c.Gateway + ":" + c.GatewayPaymentID
}
