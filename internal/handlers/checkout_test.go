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
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/services"
)

func TestCheckoutHandlersPreview(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	var captured services.PreviewCheckoutCommand
	svc := &stubOrderService{previewFn: func(_ context.Context, cmd services.PreviewCheckoutCommand) (services.CheckoutPreview, error) {
		captured = cmd
		return services.CheckoutPreview{
			Items:    sampleOrder().Items,
			Summary:  services.CalculationSummary{TotalWeightKg: 1.2, TotalQuantity: 3},
			Pricing:  sampleOrder().Pricing,
			Currency: "INR",
			Quote: domain.ShippingQuote{
				CourierID: "c1", ShippingCharge: decimal.NewFromInt(60), DeliveryPincode: "560001",
				WeightKg: 1.2, ExpiresAt: expires, Token: "signed",
			},
			PaymentOrder: &payments.GatewayOrder{Gateway: "stripe", ID: "pi_1", Amount: decimal.RequireFromString("2578.43"), Currency: "INR", ClientSecret: "pi_1_secret"},
		}, nil
	}}
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, svc).Routes(router)

	req := withUser(httptest.NewRequest(http.MethodPost, "/checkout:preview", jsonBody(`{"addressId":"home","prepaid":true}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Selection != nil || !captured.Prepaid || captured.AddressID != "home" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp checkoutPreviewResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Quote.Token != "signed" || resp.Quote.ShippingCharge != "60.00" || resp.Quote.ExpiresAt != "2026-03-01T10:15:00Z" {
		t.Fatalf("unexpected quote %+v", resp.Quote)
	}
	if resp.PaymentOrder == nil || resp.PaymentOrder.ID != "pi_1" || resp.PaymentOrder.Amount != "2578.43" {
		t.Fatalf("unexpected payment order %+v", resp.PaymentOrder)
	}

	// the quote echoes back into the create payload unchanged
	quote, err := resp.Quote.toDomain()
	if err != nil {
		t.Fatalf("quote round trip: %v", err)
	}
	if !quote.ExpiresAt.Equal(expires) || quote.WeightKg != 1.2 || !quote.ShippingCharge.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("quote changed on round trip: %+v", quote)
	}
}

func TestCheckoutHandlersPreviewRequiresAddress(t *testing.T) {
	svc := &stubOrderService{previewFn: func(context.Context, services.PreviewCheckoutCommand) (services.CheckoutPreview, error) {
		t.Fatal("service must not be called")
		return services.CheckoutPreview{}, nil
	}}
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, svc).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/checkout:preview", jsonBody(`{}`)), "user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersPreviewStockConflict(t *testing.T) {
	svc := &stubOrderService{previewFn: func(context.Context, services.PreviewCheckoutCommand) (services.CheckoutPreview, error) {
		return services.CheckoutPreview{}, &services.Error{Kind: services.ErrInsufficientStock, Message: "insufficient stock for kurta/red-m", Details: map[string]any{"productId": "kurta", "available": 1}}
	}}
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, svc).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/checkout:preview", jsonBody(`{"addressId":"home","selection":{"productId":"kurta","variantId":"red-m","quantity":5}}`)), "user-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["available"] != float64(1) || body["productId"] != "kurta" {
		t.Fatalf("expected stock details, got %v", body)
	}
}

func TestCheckoutHandlersPreviewRateLimited(t *testing.T) {
	calls := 0
	svc := &stubOrderService{previewFn: func(context.Context, services.PreviewCheckoutCommand) (services.CheckoutPreview, error) {
		calls++
		return services.CheckoutPreview{Currency: "INR"}, nil
	}}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, svc, WithCheckoutRateLimit(2, func() time.Time { return now })).Routes(router)

	send := func(uid string) int {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/checkout:preview", jsonBody(`{"addressId":"home"}`)), uid))
		return rr.Code
	}
	if send("user-1") != http.StatusOK || send("user-1") != http.StatusOK {
		t.Fatalf("expected burst to be allowed")
	}
	if code := send("user-1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("user-2"); code != http.StatusOK {
		t.Fatalf("expected other callers unaffected, got %d", code)
	}
	now = now.Add(31 * time.Second)
	if code := send("user-1"); code != http.StatusOK {
		t.Fatalf("expected a token after refill, got %d", code)
	}
	if calls != 4 {
		t.Fatalf("expected 4 service calls, got %d", calls)
	}
}
