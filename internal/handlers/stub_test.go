package handlers

import (
	"context"
	"net/http"
	"strings"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/services"
)

type stubOrderService struct {
	previewFn    func(context.Context, services.PreviewCheckoutCommand) (services.CheckoutPreview, error)
	createFn     func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.CancelOrderResult, error)
	transitionFn func(context.Context, services.TransitionOrderCommand) (domain.Order, error)
	getFn        func(context.Context, domain.Actor, string) (domain.Order, error)
}

func (s *stubOrderService) PreviewCheckout(ctx context.Context, cmd services.PreviewCheckoutCommand) (services.CheckoutPreview, error) {
	return s.previewFn(ctx, cmd)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	return s.getFn(ctx, actor, orderID)
}

func withUser(r *http.Request, uid string, roles ...string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func withService(r *http.Request, email string) *http.Request {
	return r.WithContext(auth.WithServiceIdentity(r.Context(), &auth.ServiceIdentity{Email: email, Subject: "svc"}))
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
