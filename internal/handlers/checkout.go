package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/services"
)

const maxCheckoutRequestBody = 16 * 1024

// CheckoutHandlers serves the checkout preview for authenticated users.
type CheckoutHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimit caps previews per caller per minute. Each preview queries the carrier.
func WithCheckoutRateLimit(perMinute int, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newRateLimiter(perMinute, clock)
	}
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the checkout endpoints. It is mounted on the API root.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r = r.With(h.authn.RequireFirebaseAuth())
	}
	r.Post("/checkout:preview", h.preview)
}

type checkoutPreviewRequest struct {
	AddressID string            `json:"addressId"`
	Selection *selectionPayload `json:"selection"`
	COD       bool              `json:"cod"`
	Prepaid   bool              `json:"prepaid"`
}

type paymentOrderPayload struct {
	Gateway      string `json:"gateway"`
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

type checkoutPreviewResponse struct {
	Items         []itemPayload        `json:"items"`
	Pricing       pricingPayload       `json:"pricingBreakdown"`
	Currency      string               `json:"currency"`
	TotalWeightKg float64              `json:"totalWeightKg"`
	TotalQuantity int                  `json:"totalQuantity"`
	Quote         quotePayload         `json:"shippingQuote"`
	PaymentOrder  *paymentOrderPayload `json:"paymentOrder,omitempty"`
}

func (h *CheckoutHandlers) preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout previews", http.StatusTooManyRequests))
		return
	}

	var req checkoutPreviewRequest
	if err := httpx.DecodeJSON(r, &req, maxCheckoutRequestBody); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	addressID := strings.TrimSpace(req.AddressID)
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "addressId is required", http.StatusBadRequest))
		return
	}

	preview, err := h.orders.PreviewCheckout(ctx, services.PreviewCheckoutCommand{
		Actor:     actor,
		AddressID: addressID,
		Selection: req.Selection.toSelection(),
		COD:       req.COD,
		Prepaid:   req.Prepaid,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := checkoutPreviewResponse{
		Items:         itemsFromDomain(preview.Items),
		Pricing:       pricingFromDomain(preview.Pricing),
		Currency:      preview.Currency,
		TotalWeightKg: preview.Summary.TotalWeightKg,
		TotalQuantity: preview.Summary.TotalQuantity,
		Quote:         quoteFromDomain(preview.Quote),
	}
	if po := preview.PaymentOrder; po != nil {
		resp.PaymentOrder = &paymentOrderPayload{
			Gateway:      po.Gateway,
			ID:           po.ID,
			Amount:       money(po.Amount),
			Currency:     po.Currency,
			ClientSecret: po.ClientSecret,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
