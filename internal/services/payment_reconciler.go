package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/payments"
)

const defaultRefundTimeout = 10 * time.Second

// PaymentGateway is the subset of payments.Manager the engine uses.
type PaymentGateway interface {
	DefaultGateway() string
	CreateOrder(ctx context.Context, gateway string, req payments.CreateOrderRequest) (payments.GatewayOrder, error)
	FetchOrder(ctx context.Context, gateway, id string) (payments.GatewayOrder, error)
	Refund(ctx context.Context, gateway string, req payments.RefundRequest) (payments.RefundResult, error)
}

// PaymentReconcilerConfig configures payment verification and refunds.
type PaymentReconcilerConfig struct {
	Gateway         PaymentGateway
	SignatureSecret string
	RefundTimeout   time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// PaymentReconciler decides the initial payment state of an order and refunds it on cancellation.
type PaymentReconciler struct {
	gateway       PaymentGateway
	secret        string
	refundTimeout time.Duration
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentReconciler constructs a reconciler. Without a gateway prepaid previews and refunds fail.
func NewPaymentReconciler(cfg PaymentReconcilerConfig) *PaymentReconciler {
	timeout := cfg.RefundTimeout
	if timeout <= 0 {
		timeout = defaultRefundTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentReconciler{
		gateway:       cfg.Gateway,
		secret:        cfg.SignatureSecret,
		refundTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}
}

// Initial returns the payment reference and status of a new order. A prepaid order is PAID only when a
// gateway payment id is present, its signature verifies and the gateway order it belongs to can be read
// back; COD orders are always PENDING. Confirm must still match the amount against the order total.
func (r *PaymentReconciler) Initial(ctx context.Context, info PaymentInfo) (domain.PaymentReference, domain.PaymentStatus, error) {
	method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(info.Method))))
	switch method {
	case domain.PaymentMethodCOD:
		return domain.PaymentReference{Method: domain.PaymentMethodCOD}, domain.PaymentStatusPending, nil
	case domain.PaymentMethodPrepaid:
	default:
		return domain.PaymentReference{}, "", newError(ErrValidation, "payment method must be COD or PREPAID")
	}

	ref := domain.PaymentReference{
		Method:           domain.PaymentMethodPrepaid,
		Gateway:          strings.ToLower(strings.TrimSpace(info.Gateway)),
		GatewayOrderID:   strings.TrimSpace(info.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(info.GatewayPaymentID),
	}
	if ref.Gateway == "" && r.gateway != nil {
		ref.Gateway = r.gateway.DefaultGateway()
	}
	if ref.GatewayPaymentID == "" {
		return ref, domain.PaymentStatusPending, nil
	}
	if !payments.VerifyPayment(r.secret, ref.GatewayOrderID, ref.GatewayPaymentID, info.Signature) {
		r.logger(ctx, "payment.signature.rejected", map[string]any{
			"gatewayOrderId":   ref.GatewayOrderID,
			"gatewayPaymentId": ref.GatewayPaymentID,
		})
		return ref, domain.PaymentStatusPending, nil
	}
	if r.gateway == nil {
		return ref, domain.PaymentStatusPending, nil
	}
	gatewayOrder, err := r.gateway.FetchOrder(ctx, ref.Gateway, ref.GatewayOrderID)
	if err != nil {
		r.logger(ctx, "payment.order.lookup.failed", map[string]any{
			"gatewayOrderId": ref.GatewayOrderID,
			"error":          err.Error(),
		})
		return ref, domain.PaymentStatusPending, nil
	}
	ref.Amount = domain.Round2(gatewayOrder.Amount)
	ref.Currency = strings.ToUpper(gatewayOrder.Currency)
	verified := r.clock()
	ref.VerifiedAt = &verified
	return ref, domain.PaymentStatusPaid, nil
}

// Confirm checks a verified payment against the total it is about to settle. A gateway order opened for
// another amount or currency leaves the order PENDING and the returned reason says why.
func (r *PaymentReconciler) Confirm(ctx context.Context, ref domain.PaymentReference, status domain.PaymentStatus, total decimal.Decimal, currency string) (domain.PaymentStatus, string) {
	if status != domain.PaymentStatusPaid {
		return status, ""
	}
	total = domain.Round2(total)
	var reason string
	switch {
	case !strings.EqualFold(ref.Currency, currency):
		reason = fmt.Sprintf("gateway currency %s does not match %s", ref.Currency, currency)
	case !ref.Amount.Equal(total):
		reason = fmt.Sprintf("gateway amount %s does not match total %s", ref.Amount.StringFixed(2), total.StringFixed(2))
	default:
		return domain.PaymentStatusPaid, ""
	}
	r.logger(ctx, "payment.amount.mismatch", map[string]any{
		"gatewayOrderId":   ref.GatewayOrderID,
		"gatewayPaymentId": ref.GatewayPaymentID,
		"reason":           reason,
	})
	return domain.PaymentStatusPending, reason
}

// CreatePaymentOrder opens a gateway order the client pays against before calling create.
func (r *PaymentReconciler) CreatePaymentOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (payments.GatewayOrder, error) {
	if r.gateway == nil {
		return payments.GatewayOrder{}, newError(ErrExternalService, "payment gateway not configured")
	}
	order, err := r.gateway.CreateOrder(ctx, "", payments.CreateOrderRequest{
		Amount:         domain.Round2(amount),
		Currency:       currency,
		Receipt:        receipt,
		IdempotencyKey: receipt,
	})
	if err != nil {
		return payments.GatewayOrder{}, newError(ErrExternalService, "payment gateway rejected the order").wrap(err)
	}
	return order, nil
}

// Refund refunds exactly the order total. It never fails: a gateway error or timeout is recorded as a
// FAILED refund that needs manual action.
func (r *PaymentReconciler) Refund(ctx context.Context, order domain.Order) domain.Refund {
	refund := domain.Refund{
		Amount:      domain.Round2(order.Pricing.TotalAmount),
		Status:      domain.RefundStatusPending,
		InitiatedAt: r.clock(),
	}
	fail := func(reason string) domain.Refund {
		refund.Status = domain.RefundStatusFailed
		refund.FailureReason = reason
		refund.NeedsManualAction = true
		r.logger(ctx, "payment.refund.failed", map[string]any{
			"orderId": order.ID,
			"amount":  refund.Amount.StringFixed(2),
			"reason":  reason,
		})
		return refund
	}
	if r.gateway == nil {
		return fail("payment gateway not configured")
	}
	paymentID := order.Payment.GatewayPaymentID
	if paymentID == "" {
		return fail("order has no gateway payment id")
	}

	refundCtx, cancel := context.WithTimeout(ctx, r.refundTimeout)
	defer cancel()
	res, err := r.gateway.Refund(refundCtx, order.Payment.Gateway, payments.RefundRequest{
		PaymentID:      paymentID,
		Amount:         refund.Amount,
		Currency:       order.Currency,
		IdempotencyKey: "refund-" + order.ID,
		Notes: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail("refund timed out")
		}
		return fail(err.Error())
	}

	refund.RefundID = res.ID
	switch res.Status {
	case payments.RefundStatusSucceeded:
		completed := r.clock()
		refund.Status = domain.RefundStatusProcessed
		refund.CompletedAt = &completed
	case payments.RefundStatusFailed:
		return fail("gateway reported the refund as failed")
	}
	r.logger(ctx, "payment.refund.initiated", map[string]any{
		"orderId":  order.ID,
		"refundId": refund.RefundID,
		"status":   string(refund.Status),
	})
	return refund
}
