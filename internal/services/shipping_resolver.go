package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/shipping"
)

const defaultQuoteTTL = 15 * time.Minute

// CarrierClient queries the shipping carrier.
type CarrierClient interface {
	Serviceability(ctx context.Context, req shipping.ServiceabilityRequest) (shipping.Serviceability, error)
}

// ShippingResolverConfig configures the resolver's fallback policy and quote signing.
type ShippingResolverConfig struct {
	Carrier               CarrierClient
	OriginPincode         string
	FreeShippingThreshold decimal.Decimal
	FlatFee               decimal.Decimal
	QuoteTTL              time.Duration
	SigningSecret         string
	Clock                 func() time.Time
	Logger                func(ctx context.Context, event string, fields map[string]any)
}

// QuoteRequest describes the shipment to quote.
type QuoteRequest struct {
	DeliveryPincode string
	WeightKg        float64
	COD             bool
	Subtotal        decimal.Decimal
}

// ShippingResolver locks a courier quote at preview and re-validates it at commit.
type ShippingResolver struct {
	carrier   CarrierClient
	origin    string
	threshold decimal.Decimal
	flatFee   decimal.Decimal
	ttl       time.Duration
	secret    []byte
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewShippingResolver constructs a resolver. A nil carrier makes every quote a fallback quote.
func NewShippingResolver(cfg ShippingResolverConfig) (*ShippingResolver, error) {
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, errors.New("shipping resolver: quote signing secret is required")
	}
	if cfg.Carrier != nil && strings.TrimSpace(cfg.OriginPincode) == "" {
		return nil, errors.New("shipping resolver: origin pincode is required")
	}
	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ShippingResolver{
		carrier:   cfg.Carrier,
		origin:    strings.TrimSpace(cfg.OriginPincode),
		threshold: cfg.FreeShippingThreshold,
		flatFee:   domain.Round2(cfg.FlatFee),
		ttl:       ttl,
		secret:    []byte(cfg.SigningSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Quote selects the carrier's recommended courier, or the fallback policy when the carrier fails.
func (r *ShippingResolver) Quote(ctx context.Context, req QuoteRequest) (domain.ShippingQuote, error) {
	pincode := strings.TrimSpace(req.DeliveryPincode)
	if pincode == "" {
		return domain.ShippingQuote{}, newError(ErrValidation, "delivery pincode is required")
	}
	now := r.clock()
	quote := domain.ShippingQuote{
		DeliveryPincode: pincode,
		WeightKg:        roundWeight(req.WeightKg),
		QuotedAt:        now,
		ExpiresAt:       now.Add(r.ttl),
	}

	courier, err := r.recommended(ctx, pincode, req.WeightKg, req.COD)
	if err != nil {
		r.logger(ctx, "shipping.quote.fallback", map[string]any{
			"deliveryPincode": pincode,
			"error":           err.Error(),
		})
		quote.Fallback = true
		quote.ShippingCharge = r.fallbackCharge(req.Subtotal)
	} else {
		quote.CourierID = courier.ID
		quote.CourierName = courier.Name
		quote.ShippingCharge = domain.Round2(courier.Rate)
		if courier.ETADays > 0 {
			quote.EstimatedDelivery = now.AddDate(0, 0, courier.ETADays).Format("2006-01-02")
		}
	}
	quote.Token = r.sign(quote)
	return quote, nil
}

// Revalidate checks a client-supplied quote at commit. Fallback quotes are accepted once their signature,
// expiry, pincode and weight check out; courier quotes must still be the carrier's recommendation.
func (r *ShippingResolver) Revalidate(ctx context.Context, quote domain.ShippingQuote, req QuoteRequest) error {
	if !r.verify(quote) {
		return newError(ErrQuoteExpired, "shipping quote signature is invalid")
	}
	if !r.clock().Before(quote.ExpiresAt) {
		return newError(ErrQuoteExpired, "shipping quote expired at %s", quote.ExpiresAt.Format(time.RFC3339))
	}
	if strings.TrimSpace(req.DeliveryPincode) != quote.DeliveryPincode {
		return newError(ErrQuoteExpired, "shipping quote was issued for another pincode")
	}
	if roundWeight(req.WeightKg) != quote.WeightKg {
		return newError(ErrQuoteExpired, "shipping quote was issued for another weight").
			with("quotedWeightKg", quote.WeightKg).
			with("weightKg", roundWeight(req.WeightKg))
	}
	if quote.Fallback {
		return nil
	}

	courier, err := r.recommended(ctx, quote.DeliveryPincode, req.WeightKg, req.COD)
	if err != nil {
		return newError(ErrExternalService, "shipping carrier unavailable").wrap(err)
	}
	if courier.ID != quote.CourierID {
		return newError(ErrQuoteExpired, "courier %s is no longer recommended", quote.CourierID).
			with("courierId", quote.CourierID).
			with("recommendedCourierId", courier.ID)
	}
	return nil
}

func (r *ShippingResolver) recommended(ctx context.Context, pincode string, weightKg float64, cod bool) (shipping.Courier, error) {
	if r.carrier == nil {
		return shipping.Courier{}, errors.New("carrier not configured")
	}
	res, err := r.carrier.Serviceability(ctx, shipping.ServiceabilityRequest{
		PickupPincode:   r.origin,
		DeliveryPincode: pincode,
		WeightKg:        roundWeight(weightKg),
		COD:             cod,
	})
	if err != nil {
		return shipping.Courier{}, err
	}
	courier, ok := res.Recommended()
	if !ok {
		return shipping.Courier{}, shipping.ErrNoCouriers
	}
	return courier, nil
}

func (r *ShippingResolver) fallbackCharge(subtotal decimal.Decimal) decimal.Decimal {
	if r.threshold.IsPositive() && subtotal.GreaterThan(r.threshold) {
		return decimal.Zero
	}
	return r.flatFee
}

func (r *ShippingResolver) sign(quote domain.ShippingQuote) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(canonicalQuote(quote)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (r *ShippingResolver) verify(quote domain.ShippingQuote) bool {
	provided, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(quote.Token))
	if err != nil || len(provided) == 0 {
		return false
	}
	expected, _ := base64.RawURLEncoding.DecodeString(r.sign(quote))
	return hmac.Equal(provided, expected)
}

// canonicalQuote covers every field the order copies from the quote, so none of them can be edited
// between preview and commit.
func canonicalQuote(q domain.ShippingQuote) string {
	return strings.Join([]string{
		q.CourierID,
		strings.TrimSpace(q.CourierName),
		q.EstimatedDelivery,
		domain.Round2(q.ShippingCharge).StringFixed(2),
		q.DeliveryPincode,
		strconv.FormatFloat(q.WeightKg, 'f', 3, 64),
		strconv.FormatBool(q.Fallback),
		strconv.FormatInt(q.QuotedAt.Unix(), 10),
		strconv.FormatInt(q.ExpiresAt.Unix(), 10),
	}, "|")
}
