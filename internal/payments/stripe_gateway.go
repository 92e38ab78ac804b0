package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/hanko-field/orderengine/internal/domain"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger

	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGateway implements Gateway with Stripe payment intents and refunds.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
	account string
	logger  StripeLogger
}

// NewStripeGateway constructs a Stripe gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	intents, refunds := cfg.intents, cfg.refunds
	if intents == nil || refunds == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		intents, refunds = sc.PaymentIntents, sc.Refunds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		intents: intents,
		refunds: refunds,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Name implements Gateway.
func (g *StripeGateway) Name() string { return "stripe" }

// CreateOrder creates a payment intent for the amount. The intent id is the gateway order id.
func (g *StripeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("stripe: gateway is nil")
	}
	if !req.Amount.IsPositive() {
		return GatewayOrder{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return GatewayOrder{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(domain.MinorUnits(req.Amount)),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.Receipt != "" {
		params.Description = stripe.String(req.Receipt)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return GatewayOrder{
		Gateway:      g.Name(),
		ID:           intent.ID,
		Amount:       domain.FromMinorUnits(intent.Amount),
		Currency:     strings.ToUpper(string(intent.Currency)),
		ClientSecret: intent.ClientSecret,
	}, nil
}

// FetchOrder reads the payment intent back. Amount is what the intent was opened for.
func (g *StripeGateway) FetchOrder(ctx context.Context, id string) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("stripe: gateway is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return GatewayOrder{}, fmt.Errorf("stripe: %w: empty id", ErrOrderNotFound)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	intent, err := g.intents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return GatewayOrder{}, fmt.Errorf("stripe: %w: %s", ErrOrderNotFound, id)
		}
		return GatewayOrder{}, fmt.Errorf("stripe: get payment intent %s: %w", id, err)
	}
	return GatewayOrder{
		Gateway:  g.Name(),
		ID:       intent.ID,
		Amount:   domain.FromMinorUnits(intent.Amount),
		Currency: strings.ToUpper(string(intent.Currency)),
	}, nil
}

// Refund refunds a charge ("ch_" ids) or a payment intent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, errors.New("stripe: gateway is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return RefundResult{}, errors.New("stripe: payment id is required")
	}
	params := &stripe.RefundParams{}
	if strings.HasPrefix(paymentID, "ch_") {
		params.Charge = stripe.String(paymentID)
	} else {
		params.PaymentIntent = stripe.String(paymentID)
	}
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(domain.MinorUnits(req.Amount))
	}
	params.Reason = stripe.String(string(stripe.RefundReasonRequestedByCustomer))
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if len(req.Notes) > 0 {
		params.Metadata = copyMetadata(req.Notes)
	}

	refund, err := g.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund %s: %w", paymentID, err)
	}
	result := RefundResult{
		ID:     refund.ID,
		Amount: domain.FromMinorUnits(refund.Amount),
		Status: stripeRefundStatus(refund.Status),
	}
	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"refundId":  refund.ID,
		"paymentId": paymentID,
		"status":    refund.Status,
	})
	return result, nil
}

func stripeRefundStatus(status stripe.RefundStatus) RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return RefundStatusSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return RefundStatusFailed
	default:
		return RefundStatusPending
	}
}

func copyMetadata(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
