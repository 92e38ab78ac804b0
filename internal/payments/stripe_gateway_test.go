package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type fakeIntents struct {
	newFn func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (f fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.newFn(params)
}

func (f fakeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.getFn(id, params)
}

type fakeRefunds struct {
	newFn func(*stripe.RefundParams) (*stripe.Refund, error)
}

func (f fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return f.newFn(params)
}

func newTestStripeGateway(t *testing.T, intents fakeIntents, refunds fakeRefunds) *StripeGateway {
	t.Helper()
	gw, err := NewStripeGateway(StripeGatewayConfig{AccountID: "acct_1", intents: intents, refunds: refunds})
	require.NoError(t, err)
	return gw
}

func TestStripeCreateOrderUsesMinorUnits(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	gw := newTestStripeGateway(t, fakeIntents{newFn: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		captured = p
		return &stripe.PaymentIntent{ID: "pi_1", Amount: *p.Amount, Currency: stripe.Currency(*p.Currency), ClientSecret: "cs"}, nil
	}}, fakeRefunds{})

	order, err := gw.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:         decimal.RequireFromString("1048.50"),
		Currency:       "INR",
		IdempotencyKey: "preview-1",
		Metadata:       map[string]string{"userId": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(104850), *captured.Amount)
	assert.Equal(t, "inr", *captured.Currency)
	assert.Equal(t, "preview-1", *captured.IdempotencyKey)
	assert.Equal(t, "acct_1", *captured.StripeAccount)
	assert.Equal(t, "pi_1", order.ID)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("1048.50")))
	assert.Equal(t, "INR", order.Currency)
}

func TestStripeCreateOrderValidates(t *testing.T) {
	gw := newTestStripeGateway(t, fakeIntents{}, fakeRefunds{})
	_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: decimal.Zero, Currency: "INR"})
	assert.Error(t, err)
	_, err = gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
}

func TestStripeRefundTargetsChargeOrIntent(t *testing.T) {
	var calls []*stripe.RefundParams
	gw := newTestStripeGateway(t, fakeIntents{}, fakeRefunds{newFn: func(p *stripe.RefundParams) (*stripe.Refund, error) {
		calls = append(calls, p)
		return &stripe.Refund{ID: "re_1", Amount: *p.Amount, Status: stripe.RefundStatusSucceeded}, nil
	}})

	res, err := gw.Refund(context.Background(), RefundRequest{
		PaymentID:      "ch_1",
		Amount:         decimal.RequireFromString("99.99"),
		Notes:          map[string]string{"orderId": "ord_1"},
		IdempotencyKey: "refund-ord_1",
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusSucceeded, res.Status)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("99.99")))
	require.Len(t, calls, 1)
	assert.Equal(t, "ch_1", *calls[0].Charge)
	assert.Nil(t, calls[0].PaymentIntent)
	assert.Equal(t, int64(9999), *calls[0].Amount)
	assert.Equal(t, "ord_1", calls[0].Metadata["orderId"])

	_, err = gw.Refund(context.Background(), RefundRequest{PaymentID: "pi_9", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "pi_9", *calls[1].PaymentIntent)
}

func TestStripeRefundMapsStatusesAndErrors(t *testing.T) {
	status := stripe.RefundStatusPending
	gw := newTestStripeGateway(t, fakeIntents{}, fakeRefunds{newFn: func(p *stripe.RefundParams) (*stripe.Refund, error) {
		if *p.PaymentIntent == "pi_err" {
			return nil, errors.New("card_declined")
		}
		return &stripe.Refund{ID: "re_2", Status: status}, nil
	}})

	res, err := gw.Refund(context.Background(), RefundRequest{PaymentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusPending, res.Status)

	status = stripe.RefundStatusCanceled
	res, err = gw.Refund(context.Background(), RefundRequest{PaymentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusFailed, res.Status)

	_, err = gw.Refund(context.Background(), RefundRequest{PaymentID: "pi_err"})
	assert.ErrorContains(t, err, "card_declined")

	_, err = gw.Refund(context.Background(), RefundRequest{PaymentID: " "})
	assert.Error(t, err)
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	_, err := NewStripeGateway(StripeGatewayConfig{})
	assert.Error(t, err)
}

func TestStripeFetchOrderReadsIntentAmount(t *testing.T) {
	gw := newTestStripeGateway(t, fakeIntents{getFn: func(id string, p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		assert.Equal(t, "acct_1", *p.StripeAccount)
		switch id {
		case "pi_1":
			return &stripe.PaymentIntent{ID: "pi_1", Amount: 89948, Currency: "inr"}, nil
		case "pi_gone":
			return nil, &stripe.Error{HTTPStatusCode: 404, Msg: "No such payment_intent"}
		default:
			return nil, errors.New("connection reset")
		}
	}}, fakeRefunds{})

	order, err := gw.FetchOrder(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("899.48")))
	assert.Equal(t, "INR", order.Currency)

	_, err = gw.FetchOrder(context.Background(), "pi_gone")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = gw.FetchOrder(context.Background(), "pi_other")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
}
