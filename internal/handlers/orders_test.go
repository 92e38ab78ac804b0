package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/services"
)

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-20260301-000001",
		UserID:        "user-1",
		Currency:      "INR",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Payment:       domain.PaymentReference{Method: domain.PaymentMethodCOD},
		Items: []domain.OrderItem{{
			ProductID: "kurta", VariantID: "red-m", Name: "Cotton Kurta", Quantity: 3,
			UnitPrice: decimal.RequireFromString("1000"), UnitSellingPrice: decimal.RequireFromString("799.5"),
			UnitDiscount: decimal.RequireFromString("200.5"), DiscountPercent: decimal.RequireFromString("20.05"),
			LineSubtotal: decimal.RequireFromString("2398.5"), LineWeightKg: 1.2,
		}},
		Pricing: domain.Pricing{
			MRPTotal: decimal.RequireFromString("3000"), Subtotal: decimal.RequireFromString("2398.5"),
			Discount: decimal.RequireFromString("601.5"), ShippingCharge: decimal.RequireFromString("60"),
			TaxAmount: decimal.RequireFromString("119.93"), TotalAmount: decimal.RequireFromString("2578.43"),
		},
		Address:       domain.Address{Pincode: "560001", City: "Bengaluru"},
		StatusHistory: []domain.StatusChange{{Status: domain.OrderStatusPending, ChangedBy: "user-1", ChangedAt: created}},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func newOrderRouter(svc services.OrderService, opts ...OrderHandlersOption) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, svc, opts...).Routes)
	return router
}

const createOrderBody = `{
	"addressId": "home",
	"selection": {"productId": "kurta", "variantId": "red-m", "quantity": 3},
	"shippingQuote": {"courierId": "c1", "shippingCharge": "60.00", "deliveryPincode": "560001", "weightKg": 1.2, "fallback": false, "expiresAt": "2026-03-01T10:15:00Z", "token": "tok"},
	"payment": {"method": "COD"}
}`

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{createFn: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
		captured = cmd
		return sampleOrder(), nil
	}}
	router := newOrderRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodPost, "/orders", jsonBody(createOrderBody)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.ID != "user-1" || captured.Actor.Role != domain.RoleUser {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if captured.Selection == nil || captured.Selection.VariantID != "red-m" || captured.Selection.Quantity != 3 {
		t.Fatalf("unexpected selection %+v", captured.Selection)
	}
	if !captured.Quote.ShippingCharge.Equal(decimal.NewFromInt(60)) || captured.Quote.Token != "tok" {
		t.Fatalf("unexpected quote %+v", captured.Quote)
	}
	if !captured.Quote.ExpiresAt.Equal(time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %s", captured.Quote.ExpiresAt)
	}
	if captured.Payment.Method != domain.PaymentMethodCOD {
		t.Fatalf("unexpected payment %+v", captured.Payment)
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderNumber != "ORD-20260301-000001" || resp.Pricing.TotalAmount != "2578.43" || resp.Pricing.Subtotal != "2398.50" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Items) != 1 || resp.Items[0].UnitSellingPrice != "799.50" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord_1" {
		t.Fatalf("unexpected location %s", loc)
	}
}

func TestOrderHandlersCreateOrderValidation(t *testing.T) {
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
		t.Fatal("service must not be called")
		return domain.Order{}, nil
	}}
	router := newOrderRouter(svc)

	cases := map[string]string{
		"missing quote":   `{"addressId":"home","payment":{"method":"COD"}}`,
		"missing address": `{"shippingQuote":{"shippingCharge":"0","expiresAt":"2026-03-01T10:15:00Z"}}`,
		"bad charge":      `{"addressId":"home","shippingQuote":{"shippingCharge":"free","expiresAt":"2026-03-01T10:15:00Z"}}`,
		"unknown field":   `{"addressId":"home","coupon":"SAVE10"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := withUser(httptest.NewRequest(http.MethodPost, "/orders", jsonBody(body)), "user-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", jsonBody(createOrderBody)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestOrderHandlersMapsEngineErrors(t *testing.T) {
	cases := []struct {
		kind   error
		status int
		code   string
	}{
		{services.ErrValidation, http.StatusBadRequest, "invalid_request"},
		{services.ErrNotFound, http.StatusNotFound, "not_found"},
		{services.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{services.ErrQuoteExpired, http.StatusConflict, "quote_expired"},
		{services.ErrConflict, http.StatusConflict, "conflict"},
		{services.ErrVariantRequired, http.StatusUnprocessableEntity, "variant_required"},
		{services.ErrUnavailable, http.StatusUnprocessableEntity, "product_unavailable"},
		{services.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{services.ErrExternalService, http.StatusBadGateway, "upstream_unavailable"},
		{services.ErrInternal, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
				return domain.Order{}, &services.Error{Kind: tc.kind, Message: "boom", Details: map[string]any{"available": 2}}
			}}
			req := withUser(httptest.NewRequest(http.MethodPost, "/orders", jsonBody(createOrderBody)), "user-1")
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			if tc.kind != services.ErrInternal && body["available"] != float64(2) {
				t.Fatalf("expected details to be merged, got %v", body)
			}
		})
	}
}

func TestOrderHandlersGetAndCancel(t *testing.T) {
	cancelledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		getFn: func(_ context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
			if actor.Role != domain.RoleAdmin {
				t.Fatalf("expected staff to map to admin, got %+v", actor)
			}
			order := sampleOrder()
			order.ID = orderID
			return order, nil
		},
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error) {
			if cmd.OrderID != "ord_9" || cmd.Reason != "changed mind" {
				t.Fatalf("unexpected cancel command %+v", cmd)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			order.PaymentStatus = domain.PaymentStatusPaid
			return services.CancelOrderResult{
				Order:         order,
				CancelledAt:   cancelledAt,
				StockRestored: []domain.StockAdjustment{{ProductID: "kurta", VariantID: "red-m", Released: 3}},
				Refund:        &domain.Refund{Amount: decimal.RequireFromString("2578.43"), Status: domain.RefundStatusFailed, NeedsManualAction: true, InitiatedAt: cancelledAt},
				Warnings:      []string{"refund failed: timeout; manual action required"},
			}, nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/orders/ord_7", nil), "ops", "staff"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var order orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &order); err != nil || order.OrderID != "ord_7" {
		t.Fatalf("unexpected get response %s (%v)", rr.Body.String(), err)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/orders/ord_9:cancel", jsonBody(`{"reason":"changed mind"}`)), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cancelOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "CANCELLED" || resp.PaymentStatus != "PAID" || len(resp.Warnings) != 1 {
		t.Fatalf("unexpected cancel response %+v", resp)
	}
	if resp.Refund == nil || !resp.Refund.NeedsManualAction || resp.Refund.Amount != "2578.43" {
		t.Fatalf("unexpected refund %+v", resp.Refund)
	}
	if len(resp.StockRestored) != 1 || resp.StockRestored[0].Released != 3 {
		t.Fatalf("unexpected stock summary %+v", resp.StockRestored)
	}
	if resp.CancelledAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected cancelledAt %s", resp.CancelledAt)
	}
}

func TestOrderHandlersIdempotentCreate(t *testing.T) {
	calls := 0
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
		calls++
		return sampleOrder(), nil
	}}
	router := newOrderRouter(svc, WithOrderIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())))

	send := func() *httptest.ResponseRecorder {
		req := withUser(httptest.NewRequest(http.MethodPost, "/orders", jsonBody(createOrderBody)), "user-1")
		req.Header.Set("Idempotency-Key", "key-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}
	first, second := send(), send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one service call, got %d", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body")
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/orders", jsonBody(createOrderBody)), "user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected missing key to be rejected, got %d", rr.Code)
	}
}
