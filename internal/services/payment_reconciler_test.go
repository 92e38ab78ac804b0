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
	"github.com/hanko-field/orderengine/internal/payments"
)

func newReconciler(gateway PaymentGateway, timeout time.Duration) *PaymentReconciler {
	return NewPaymentReconciler(PaymentReconcilerConfig{
		Gateway:         gateway,
		SignatureSecret: testPaymentSecret,
		RefundTimeout:   timeout,
		Clock:           func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
}

func TestReconcilerInitialStatus(t *testing.T) {
	gateway := &stubPaymentGateway{}
	r := newReconciler(gateway, time.Second)
	ctx := context.Background()
	opened, err := gateway.CreateOrder(ctx, "", payments.CreateOrderRequest{Amount: decimal.RequireFromString("1738.95"), Currency: "inr"})
	require.NoError(t, err)
	require.Equal(t, "pi_1", opened.ID)

	ref, status, err := r.Initial(ctx, PaymentInfo{Method: "cod", GatewayPaymentID: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Equal(t, domain.PaymentMethodCOD, ref.Method)
	assert.Empty(t, ref.GatewayPaymentID)

	ref, status, err = r.Initial(ctx, PaymentInfo{Method: domain.PaymentMethodPrepaid, GatewayOrderID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Equal(t, "stripe", ref.Gateway)

	_, status, err = r.Initial(ctx, PaymentInfo{Method: domain.PaymentMethodPrepaid, GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: payments.SignPayment("other", "pi_1", "ch_1")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, status)

	ref, status, err = r.Initial(ctx, PaymentInfo{Method: domain.PaymentMethodPrepaid, Gateway: "Sandbox", GatewayOrderID: "pi_1", GatewayPaymentID: "ch_1", Signature: payments.SignPayment(testPaymentSecret, "pi_1", "ch_1")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, status)
	assert.Equal(t, "sandbox", ref.Gateway)
	require.NotNil(t, ref.VerifiedAt)
	assert.True(t, ref.Amount.Equal(decimal.RequireFromString("1738.95")))
	assert.Equal(t, "INR", ref.Currency)

	// a correctly signed payment whose gateway order cannot be read back is not trusted
	ref, status, err = r.Initial(ctx, PaymentInfo{Method: domain.PaymentMethodPrepaid, GatewayOrderID: "pi_404", GatewayPaymentID: "ch_1", Signature: payments.SignPayment(testPaymentSecret, "pi_404", "ch_1")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Nil(t, ref.VerifiedAt)

	_, _, err = r.Initial(ctx, PaymentInfo{Method: "card"})
	kindOf(t, err, ErrValidation)
}

func paidOrder() domain.Order {
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-20260301-000001",
		Currency:      "INR",
		PaymentStatus: domain.PaymentStatusPaid,
		Payment:       domain.PaymentReference{Method: domain.PaymentMethodPrepaid, Gateway: "stripe", GatewayPaymentID: "ch_1"},
		Pricing:       domain.Pricing{TotalAmount: decimal.RequireFromString("1738.95")},
	}
}

func TestReconcilerRefundOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		fn     func(context.Context, payments.RefundRequest) (payments.RefundResult, error)
		status domain.RefundStatus
		manual bool
	}{
		{
			name:   "succeeded",
			status: domain.RefundStatusProcessed,
		},
		{
			name: "pending at gateway",
			fn: func(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
				return payments.RefundResult{ID: "re_2", Amount: req.Amount, Status: payments.RefundStatusPending}, nil
			},
			status: domain.RefundStatusPending,
		},
		{
			name: "gateway reports failure",
			fn: func(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
				return payments.RefundResult{ID: "re_3", Status: payments.RefundStatusFailed}, nil
			},
			status: domain.RefundStatusFailed,
			manual: true,
		},
		{
			name: "gateway error",
			fn: func(context.Context, payments.RefundRequest) (payments.RefundResult, error) {
				return payments.RefundResult{}, errors.New("card network down")
			},
			status: domain.RefundStatusFailed,
			manual: true,
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, _ payments.RefundRequest) (payments.RefundResult, error) {
				<-ctx.Done()
				return payments.RefundResult{}, ctx.Err()
			},
			status: domain.RefundStatusFailed,
			manual: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := &stubPaymentGateway{refundFn: tc.fn}
			r := newReconciler(gateway, 20*time.Millisecond)

			refund := r.Refund(context.Background(), paidOrder())
			assert.Equal(t, tc.status, refund.Status)
			assert.Equal(t, tc.manual, refund.NeedsManualAction)
			assert.True(t, refund.Amount.Equal(decimal.RequireFromString("1738.95")))
			if tc.manual {
				assert.NotEmpty(t, refund.FailureReason)
			}
			require.Len(t, gateway.refunds, 1)
			assert.Equal(t, "refund-ord_1", gateway.refunds[0].IdempotencyKey)
			assert.Equal(t, "ORD-20260301-000001", gateway.refunds[0].Notes["orderNumber"])
		})
	}
}

func TestReconcilerRefundWithoutGateway(t *testing.T) {
	r := newReconciler(nil, time.Second)
	refund := r.Refund(context.Background(), paidOrder())
	assert.Equal(t, domain.RefundStatusFailed, refund.Status)
	assert.True(t, refund.NeedsManualAction)

	_, err := r.CreatePaymentOrder(context.Background(), decimal.NewFromInt(10), "INR", "chk_1")
	kindOf(t, err, ErrExternalService)
}

func TestReconcilerCreatePaymentOrderMapsGatewayErrors(t *testing.T) {
	gateway := &stubPaymentGateway{createFn: func(context.Context, payments.CreateOrderRequest) (payments.GatewayOrder, error) {
		return payments.GatewayOrder{}, errors.New("declined")
	}}
	_, err := newReconciler(gateway, time.Second).CreatePaymentOrder(context.Background(), decimal.NewFromInt(10), "INR", "chk_1")
	kindOf(t, err, ErrExternalService)
}

func TestReconcilerConfirmMatchesGatewayAmount(t *testing.T) {
	r := newReconciler(&stubPaymentGateway{}, time.Second)
	ctx := context.Background()
	ref := domain.PaymentReference{
		Method:           domain.PaymentMethodPrepaid,
		GatewayPaymentID: "ch_1",
		Amount:           decimal.RequireFromString("1738.95"),
		Currency:         "INR",
	}

	status, reason := r.Confirm(ctx, ref, domain.PaymentStatusPaid, decimal.RequireFromString("1738.949"), "INR")
	assert.Equal(t, domain.PaymentStatusPaid, status)
	assert.Empty(t, reason)

	status, reason = r.Confirm(ctx, ref, domain.PaymentStatusPaid, decimal.RequireFromString("2578.43"), "INR")
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Contains(t, reason, "1738.95")

	status, reason = r.Confirm(ctx, ref, domain.PaymentStatusPaid, decimal.RequireFromString("1738.95"), "USD")
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Contains(t, reason, "USD")

	status, reason = r.Confirm(ctx, domain.PaymentReference{Method: domain.PaymentMethodCOD}, domain.PaymentStatusPending, decimal.NewFromInt(10), "INR")
	assert.Equal(t, domain.PaymentStatusPending, status)
	assert.Empty(t, reason)
}
