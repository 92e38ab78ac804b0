package firestore

import (
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

type orderItemDocument struct {
	ProductID        string  `firestore:"productId"`
	VariantID        string  `firestore:"variantId,omitempty"`
	Name             string  `firestore:"name"`
	Image            string  `firestore:"image,omitempty"`
	SKU              string  `firestore:"sku,omitempty"`
	Color            string  `firestore:"color,omitempty"`
	Size             string  `firestore:"size,omitempty"`
	Quantity         int     `firestore:"quantity"`
	UnitPrice        float64 `firestore:"mrp"`
	UnitSellingPrice float64 `firestore:"sellingPrice"`
	UnitDiscount     float64 `firestore:"discount"`
	DiscountPercent  float64 `firestore:"discountPercent"`
	LineSubtotal     float64 `firestore:"subtotal"`
	LineWeightKg     float64 `firestore:"weight"`
}

type pricingDocument struct {
	MRPTotal       float64 `firestore:"mrpTotal"`
	Subtotal       float64 `firestore:"subtotal"`
	Discount       float64 `firestore:"discount"`
	ShippingCharge float64 `firestore:"shippingCharge"`
	TaxAmount      float64 `firestore:"taxAmount"`
	TotalAmount    float64 `firestore:"totalAmount"`
}

type paymentDocument struct {
	Method           string     `firestore:"method"`
	Gateway          string     `firestore:"gateway,omitempty"`
	GatewayOrderID   string     `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `firestore:"gatewayPaymentId,omitempty"`
	Amount           float64    `firestore:"amount,omitempty"`
	Currency         string     `firestore:"currency,omitempty"`
	VerifiedAt       *time.Time `firestore:"verifiedAt,omitempty"`
}

type quoteDocument struct {
	ShippingCharge    float64   `firestore:"shippingCharge"`
	CourierID         string    `firestore:"courierId,omitempty"`
	CourierName       string    `firestore:"courierName,omitempty"`
	EstimatedDelivery string    `firestore:"estimatedDelivery,omitempty"`
	DeliveryPincode   string    `firestore:"deliveryPincode"`
	WeightKg          float64   `firestore:"weight"`
	Fallback          bool      `firestore:"fallback"`
	QuotedAt          time.Time `firestore:"quotedAt"`
	ExpiresAt         time.Time `firestore:"expiresAt"`
}

type shippingMetaDocument struct {
	Quote       quoteDocument `firestore:"quote"`
	AWB         string        `firestore:"awb,omitempty"`
	ShippedAt   *time.Time    `firestore:"shippedAt,omitempty"`
	DeliveredAt *time.Time    `firestore:"deliveredAt,omitempty"`
}

type statusChangeDocument struct {
	Status    string         `firestore:"status"`
	ChangedBy string         `firestore:"changedBy"`
	ChangedAt time.Time      `firestore:"changedAt"`
	Reason    string         `firestore:"reason,omitempty"`
	Meta      map[string]any `firestore:"meta,omitempty"`
}

type stockAdjustmentDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId,omitempty"`
	Released  int    `firestore:"released"`
	Restored  int    `firestore:"restored"`
}

type cancellationDocument struct {
	CancelledBy   string                    `firestore:"cancelledBy"`
	CancelledAt   time.Time                 `firestore:"cancelledAt"`
	Reason        string                    `firestore:"reason,omitempty"`
	StockRestored []stockAdjustmentDocument `firestore:"stockRestored"`
}

type refundDocument struct {
	RefundID          string     `firestore:"refundId,omitempty"`
	Amount            float64    `firestore:"amount"`
	Status            string     `firestore:"status"`
	InitiatedAt       time.Time  `firestore:"initiatedAt"`
	CompletedAt       *time.Time `firestore:"completedAt,omitempty"`
	FailureReason     string     `firestore:"failureReason,omitempty"`
	NeedsManualAction bool       `firestore:"needsManualAction"`
}

type orderDocument struct {
	OrderNumber   string                 `firestore:"orderNumber"`
	UserID        string                 `firestore:"userId"`
	Items         []orderItemDocument    `firestore:"items"`
	Pricing       pricingDocument        `firestore:"pricing"`
	Currency      string                 `firestore:"currency"`
	Status        string                 `firestore:"status"`
	PaymentStatus string                 `firestore:"paymentStatus"`
	Payment       paymentDocument        `firestore:"payment"`
	ShippingMeta  shippingMetaDocument   `firestore:"shippingMeta"`
	Address       addressDocument        `firestore:"address"`
	AddressID     string                 `firestore:"addressId,omitempty"`
	StatusHistory []statusChangeDocument `firestore:"statusHistory"`
	Cancellation  *cancellationDocument  `firestore:"cancellation,omitempty"`
	Refund        *refundDocument        `firestore:"refund,omitempty"`
	StockDeducted bool                   `firestore:"stockDeducted"`
	FromCart      bool                   `firestore:"fromCart"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Currency:      o.Currency,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Pricing: pricingDocument{
			MRPTotal:       domain.MoneyToFloat(o.Pricing.MRPTotal),
			Subtotal:       domain.MoneyToFloat(o.Pricing.Subtotal),
			Discount:       domain.MoneyToFloat(o.Pricing.Discount),
			ShippingCharge: domain.MoneyToFloat(o.Pricing.ShippingCharge),
			TaxAmount:      domain.MoneyToFloat(o.Pricing.TaxAmount),
			TotalAmount:    domain.MoneyToFloat(o.Pricing.TotalAmount),
		},
		Payment: paymentDocument{
			Method:           string(o.Payment.Method),
			Gateway:          o.Payment.Gateway,
			GatewayOrderID:   o.Payment.GatewayOrderID,
			GatewayPaymentID: o.Payment.GatewayPaymentID,
			Amount:           domain.MoneyToFloat(o.Payment.Amount),
			Currency:         o.Payment.Currency,
			VerifiedAt:       o.Payment.VerifiedAt,
		},
		ShippingMeta: shippingMetaDocument{
			Quote: quoteDocument{
				ShippingCharge:    domain.MoneyToFloat(o.ShippingMeta.Quote.ShippingCharge),
				CourierID:         o.ShippingMeta.Quote.CourierID,
				CourierName:       o.ShippingMeta.Quote.CourierName,
				EstimatedDelivery: o.ShippingMeta.Quote.EstimatedDelivery,
				DeliveryPincode:   o.ShippingMeta.Quote.DeliveryPincode,
				WeightKg:          o.ShippingMeta.Quote.WeightKg,
				Fallback:          o.ShippingMeta.Quote.Fallback,
				QuotedAt:          o.ShippingMeta.Quote.QuotedAt,
				ExpiresAt:         o.ShippingMeta.Quote.ExpiresAt,
			},
			AWB:         o.ShippingMeta.AWB,
			ShippedAt:   o.ShippingMeta.ShippedAt,
			DeliveredAt: o.ShippingMeta.DeliveredAt,
		},
		Address:       newAddressDocument(o.Address),
		AddressID:     o.Address.ID,
		StockDeducted: o.StockDeducted,
		FromCart:      o.FromCart,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Name:             item.Name,
			Image:            item.Image,
			SKU:              item.SKU,
			Color:            item.Color,
			Size:             item.Size,
			Quantity:         item.Quantity,
			UnitPrice:        domain.MoneyToFloat(item.UnitPrice),
			UnitSellingPrice: domain.MoneyToFloat(item.UnitSellingPrice),
			UnitDiscount:     domain.MoneyToFloat(item.UnitDiscount),
			DiscountPercent:  item.DiscountPercent.InexactFloat64(),
			LineSubtotal:     domain.MoneyToFloat(item.LineSubtotal),
			LineWeightKg:     item.LineWeightKg,
		})
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{
			Status:    string(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt,
			Reason:    change.Reason,
			Meta:      change.Meta,
		})
	}
	if c := o.Cancellation; c != nil {
		cancel := &cancellationDocument{CancelledBy: c.CancelledBy, CancelledAt: c.CancelledAt, Reason: c.Reason}
		for _, adj := range c.StockRestored {
			cancel.StockRestored = append(cancel.StockRestored, stockAdjustmentDocument(adj))
		}
		doc.Cancellation = cancel
	}
	if r := o.Refund; r != nil {
		doc.Refund = &refundDocument{
			RefundID:          r.RefundID,
			Amount:            domain.MoneyToFloat(r.Amount),
			Status:            string(r.Status),
			InitiatedAt:       r.InitiatedAt,
			CompletedAt:       r.CompletedAt,
			FailureReason:     r.FailureReason,
			NeedsManualAction: r.NeedsManualAction,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	o := domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		UserID:        d.UserID,
		Currency:      d.Currency,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Pricing: domain.Pricing{
			MRPTotal:       domain.MoneyFromFloat(d.Pricing.MRPTotal),
			Subtotal:       domain.MoneyFromFloat(d.Pricing.Subtotal),
			Discount:       domain.MoneyFromFloat(d.Pricing.Discount),
			ShippingCharge: domain.MoneyFromFloat(d.Pricing.ShippingCharge),
			TaxAmount:      domain.MoneyFromFloat(d.Pricing.TaxAmount),
			TotalAmount:    domain.MoneyFromFloat(d.Pricing.TotalAmount),
		},
		Payment: domain.PaymentReference{
			Method:           domain.PaymentMethod(d.Payment.Method),
			Gateway:          d.Payment.Gateway,
			GatewayOrderID:   d.Payment.GatewayOrderID,
			GatewayPaymentID: d.Payment.GatewayPaymentID,
			Amount:           domain.MoneyFromFloat(d.Payment.Amount),
			Currency:         d.Payment.Currency,
			VerifiedAt:       d.Payment.VerifiedAt,
		},
		ShippingMeta: domain.ShippingMeta{
			Quote: domain.ShippingQuote{
				ShippingCharge:    domain.MoneyFromFloat(d.ShippingMeta.Quote.ShippingCharge),
				CourierID:         d.ShippingMeta.Quote.CourierID,
				CourierName:       d.ShippingMeta.Quote.CourierName,
				EstimatedDelivery: d.ShippingMeta.Quote.EstimatedDelivery,
				DeliveryPincode:   d.ShippingMeta.Quote.DeliveryPincode,
				WeightKg:          d.ShippingMeta.Quote.WeightKg,
				Fallback:          d.ShippingMeta.Quote.Fallback,
				QuotedAt:          d.ShippingMeta.Quote.QuotedAt,
				ExpiresAt:         d.ShippingMeta.Quote.ExpiresAt,
			},
			AWB:         d.ShippingMeta.AWB,
			ShippedAt:   d.ShippingMeta.ShippedAt,
			DeliveredAt: d.ShippingMeta.DeliveredAt,
		},
		Address:       d.Address.toDomain(d.AddressID),
		StockDeducted: d.StockDeducted,
		FromCart:      d.FromCart,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, item := range d.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Name:             item.Name,
			Image:            item.Image,
			SKU:              item.SKU,
			Color:            item.Color,
			Size:             item.Size,
			Quantity:         item.Quantity,
			UnitPrice:        domain.MoneyFromFloat(item.UnitPrice),
			UnitSellingPrice: domain.MoneyFromFloat(item.UnitSellingPrice),
			UnitDiscount:     domain.MoneyFromFloat(item.UnitDiscount),
			DiscountPercent:  domain.MoneyFromFloat(item.DiscountPercent),
			LineSubtotal:     domain.MoneyFromFloat(item.LineSubtotal),
			LineWeightKg:     item.LineWeightKg,
		})
	}
	for _, change := range d.StatusHistory {
		o.StatusHistory = append(o.StatusHistory, domain.StatusChange{
			Status:    domain.OrderStatus(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt,
			Reason:    change.Reason,
			Meta:      change.Meta,
		})
	}
	if c := d.Cancellation; c != nil {
		cancel := &domain.Cancellation{CancelledBy: c.CancelledBy, CancelledAt: c.CancelledAt, Reason: c.Reason}
		for _, adj := range c.StockRestored {
			cancel.StockRestored = append(cancel.StockRestored, domain.StockAdjustment(adj))
		}
		o.Cancellation = cancel
	}
	if r := d.Refund; r != nil {
		o.Refund = &domain.Refund{
			RefundID:          r.RefundID,
			Amount:            domain.MoneyFromFloat(r.Amount),
			Status:            domain.RefundStatus(r.Status),
			InitiatedAt:       r.InitiatedAt,
			CompletedAt:       r.CompletedAt,
			FailureReason:     r.FailureReason,
			NeedsManualAction: r.NeedsManualAction,
		}
	}
	return o
}
