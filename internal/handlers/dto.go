package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/services"
)

type selectionPayload struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (p *selectionPayload) toSelection() *services.Selection {
	if p == nil {
		return nil
	}
	return &services.Selection{
		ProductID: strings.TrimSpace(p.ProductID),
		VariantID: strings.TrimSpace(p.VariantID),
		Color:     strings.TrimSpace(p.Color),
		Size:      strings.TrimSpace(p.Size),
		Quantity:  p.Quantity,
	}
}

type quotePayload struct {
	CourierID         string  `json:"courierId,omitempty"`
	CourierName       string  `json:"courierName,omitempty"`
	ShippingCharge    string  `json:"shippingCharge"`
	EstimatedDelivery string  `json:"estimatedDelivery,omitempty"`
	DeliveryPincode   string  `json:"deliveryPincode"`
	WeightKg          float64 `json:"weightKg"`
	Fallback          bool    `json:"fallback"`
	QuotedAt          string  `json:"quotedAt,omitempty"`
	ExpiresAt         string  `json:"expiresAt"`
	Token             string  `json:"token,omitempty"`
}

func quoteFromDomain(q domain.ShippingQuote) quotePayload {
	return quotePayload{
		CourierID:         q.CourierID,
		CourierName:       q.CourierName,
		ShippingCharge:    money(q.ShippingCharge),
		EstimatedDelivery: q.EstimatedDelivery,
		DeliveryPincode:   q.DeliveryPincode,
		WeightKg:          q.WeightKg,
		Fallback:          q.Fallback,
		QuotedAt:          formatTime(q.QuotedAt),
		ExpiresAt:         formatTime(q.ExpiresAt),
		Token:             q.Token,
	}
}

func (p quotePayload) toDomain() (domain.ShippingQuote, error) {
	charge, err := decimal.NewFromString(strings.TrimSpace(p.ShippingCharge))
	if err != nil {
		return domain.ShippingQuote{}, fmt.Errorf("quote.shippingCharge must be a decimal amount")
	}
	expires, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(p.ExpiresAt))
	if err != nil {
		return domain.ShippingQuote{}, fmt.Errorf("quote.expiresAt must be an RFC3339 timestamp")
	}
	quote := domain.ShippingQuote{
		ShippingCharge:    charge,
		CourierID:         strings.TrimSpace(p.CourierID),
		CourierName:       strings.TrimSpace(p.CourierName),
		EstimatedDelivery: strings.TrimSpace(p.EstimatedDelivery),
		DeliveryPincode:   strings.TrimSpace(p.DeliveryPincode),
		WeightKg:          p.WeightKg,
		Fallback:          p.Fallback,
		ExpiresAt:         expires.UTC(),
		Token:             strings.TrimSpace(p.Token),
	}
	if raw := strings.TrimSpace(p.QuotedAt); raw != "" {
		if quotedAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			quote.QuotedAt = quotedAt.UTC()
		}
	}
	return quote, nil
}

type pricingPayload struct {
	MRPTotal       string `json:"mrpTotal"`
	Subtotal       string `json:"subtotal"`
	Discount       string `json:"discount"`
	ShippingCharge string `json:"shippingCharge"`
	TaxAmount      string `json:"taxAmount"`
	TotalAmount    string `json:"totalAmount"`
}

func pricingFromDomain(p domain.Pricing) pricingPayload {
	return pricingPayload{
		MRPTotal:       money(p.MRPTotal),
		Subtotal:       money(p.Subtotal),
		Discount:       money(p.Discount),
		ShippingCharge: money(p.ShippingCharge),
		TaxAmount:      money(p.TaxAmount),
		TotalAmount:    money(p.TotalAmount),
	}
}

type itemPayload struct {
	ProductID        string  `json:"productId"`
	VariantID        string  `json:"variantId,omitempty"`
	Name             string  `json:"name"`
	Image            string  `json:"image,omitempty"`
	SKU              string  `json:"sku,omitempty"`
	Color            string  `json:"color,omitempty"`
	Size             string  `json:"size,omitempty"`
	Quantity         int     `json:"quantity"`
	UnitPrice        string  `json:"unitPrice"`
	UnitSellingPrice string  `json:"unitSellingPrice"`
	UnitDiscount     string  `json:"unitDiscount"`
	DiscountPercent  string  `json:"discountPercent"`
	LineSubtotal     string  `json:"lineSubtotal"`
	LineWeightKg     float64 `json:"lineWeightKg"`
}

func itemsFromDomain(items []domain.OrderItem) []itemPayload {
	out := make([]itemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, itemPayload{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Name:             item.Name,
			Image:            item.Image,
			SKU:              item.SKU,
			Color:            item.Color,
			Size:             item.Size,
			Quantity:         item.Quantity,
			UnitPrice:        money(item.UnitPrice),
			UnitSellingPrice: money(item.UnitSellingPrice),
			UnitDiscount:     money(item.UnitDiscount),
			DiscountPercent:  money(item.DiscountPercent),
			LineSubtotal:     money(item.LineSubtotal),
			LineWeightKg:     item.LineWeightKg,
		})
	}
	return out
}

type statusChangePayload struct {
	Status    string         `json:"status"`
	ChangedBy string         `json:"changedBy"`
	ChangedAt string         `json:"changedAt"`
	Reason    string         `json:"reason,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

type stockAdjustmentPayload struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Released  int    `json:"released"`
	Restored  int    `json:"restored"`
}

func adjustmentsFromDomain(adj []domain.StockAdjustment) []stockAdjustmentPayload {
	out := make([]stockAdjustmentPayload, 0, len(adj))
	for _, a := range adj {
		out = append(out, stockAdjustmentPayload{ProductID: a.ProductID, VariantID: a.VariantID, Released: a.Released, Restored: a.Restored})
	}
	return out
}

type refundPayload struct {
	RefundID          string `json:"refundId,omitempty"`
	Amount            string `json:"amount"`
	Status            string `json:"status"`
	InitiatedAt       string `json:"initiatedAt"`
	CompletedAt       string `json:"completedAt,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
	NeedsManualAction bool   `json:"needsManualAction"`
}

func refundFromDomain(r *domain.Refund) *refundPayload {
	if r == nil {
		return nil
	}
	out := &refundPayload{
		RefundID:          r.RefundID,
		Amount:            money(r.Amount),
		Status:            string(r.Status),
		InitiatedAt:       formatTime(r.InitiatedAt),
		FailureReason:     r.FailureReason,
		NeedsManualAction: r.NeedsManualAction,
	}
	if r.CompletedAt != nil {
		out.CompletedAt = formatTime(*r.CompletedAt)
	}
	return out
}

type orderPayload struct {
	OrderID       string                `json:"orderId"`
	OrderNumber   string                `json:"orderNumber"`
	UserID        string                `json:"userId"`
	Status        string                `json:"status"`
	PaymentStatus string                `json:"paymentStatus"`
	PaymentMethod string                `json:"paymentMethod"`
	Currency      string                `json:"currency"`
	Pricing       pricingPayload        `json:"pricingBreakdown"`
	Items         []itemPayload         `json:"items"`
	Shipping      orderShippingPayload  `json:"shipping"`
	StatusHistory []statusChangePayload `json:"statusHistory"`
	Refund        *refundPayload        `json:"refund,omitempty"`
	CreatedAt     string                `json:"createdAt"`
	UpdatedAt     string                `json:"updatedAt"`
}

type orderShippingPayload struct {
	Quote       quotePayload `json:"quote"`
	AWB         string       `json:"awb,omitempty"`
	ShippedAt   string       `json:"shippedAt,omitempty"`
	DeliveredAt string       `json:"deliveredAt,omitempty"`
	Pincode     string       `json:"pincode"`
	City        string       `json:"city,omitempty"`
}

func orderFromDomain(o domain.Order) orderPayload {
	history := make([]statusChangePayload, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		history = append(history, statusChangePayload{
			Status:    string(h.Status),
			ChangedBy: h.ChangedBy,
			ChangedAt: formatTime(h.ChangedAt),
			Reason:    h.Reason,
			Meta:      h.Meta,
		})
	}
	shipping := orderShippingPayload{
		Quote:   quoteFromDomain(o.ShippingMeta.Quote),
		AWB:     o.ShippingMeta.AWB,
		Pincode: o.Address.Pincode,
		City:    o.Address.City,
	}
	if o.ShippingMeta.ShippedAt != nil {
		shipping.ShippedAt = formatTime(*o.ShippingMeta.ShippedAt)
	}
	if o.ShippingMeta.DeliveredAt != nil {
		shipping.DeliveredAt = formatTime(*o.ShippingMeta.DeliveredAt)
	}
	return orderPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaymentMethod: string(o.Payment.Method),
		Currency:      o.Currency,
		Pricing:       pricingFromDomain(o.Pricing),
		Items:         itemsFromDomain(o.Items),
		Shipping:      shipping,
		StatusHistory: history,
		Refund:        refundFromDomain(o.Refund),
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
}

func money(d decimal.Decimal) string {
	return domain.Round2(d).StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
