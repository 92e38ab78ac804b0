package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/services"
)

const (
	maxOrderCreateBodySize = 16 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes the order endpoints for authenticated users.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards create and cancel with the given idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	mutating := r
	if h.idempotency != nil {
		mutating = r.With(h.idempotency)
	}
	mutating.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	mutating.Post("/{orderID}:cancel", h.cancelOrder)
}

type paymentPayload struct {
	Method           string `json:"method"`
	Gateway          string `json:"gateway"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type createOrderRequest struct {
	AddressID string            `json:"addressId"`
	Selection *selectionPayload `json:"selection"`
	Quote     *quotePayload     `json:"shippingQuote"`
	Payment   paymentPayload    `json:"payment"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type cancelOrderResponse struct {
	OrderID       string                   `json:"orderId"`
	Status        string                   `json:"status"`
	PaymentStatus string                   `json:"paymentStatus"`
	CancelledAt   string                   `json:"cancelledAt"`
	StockRestored []stockAdjustmentPayload `json:"stockRestored"`
	Refund        *refundPayload           `json:"refund,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req, maxOrderCreateBodySize); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	addressID := strings.TrimSpace(req.AddressID)
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "addressId is required", http.StatusBadRequest))
		return
	}
	if req.Quote == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shippingQuote is required", http.StatusBadRequest))
		return
	}
	quote, err := req.Quote.toDomain()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:     actor,
		AddressID: addressID,
		Selection: req.Selection.toSelection(),
		Quote:     quote,
		Payment: services.PaymentInfo{
			Method:           domain.PaymentMethod(strings.TrimSpace(req.Payment.Method)),
			Gateway:          strings.TrimSpace(req.Payment.Gateway),
			GatewayOrderID:   strings.TrimSpace(req.Payment.GatewayOrderID),
			GatewayPaymentID: strings.TrimSpace(req.Payment.GatewayPaymentID),
			Signature:        strings.TrimSpace(req.Payment.Signature),
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderFromDomain(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderFromDomain(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	var req cancelOrderRequest
	if err := httpx.DecodeJSON(r, &req, maxOrderCancelBodySize); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelOrderResponse{
		OrderID:       result.Order.ID,
		Status:        string(result.Order.Status),
		PaymentStatus: string(result.Order.PaymentStatus),
		CancelledAt:   formatTime(result.CancelledAt),
		StockRestored: adjustmentsFromDomain(result.StockRestored),
		Refund:        refundFromDomain(result.Refund),
		Warnings:      result.Warnings,
	})
}

func (h *OrderHandlers) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return domain.Actor{}, false
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	return actor, true
}
