package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/orderengine/internal/platform/httpx"
)

const (
	apiPrefix         = "/api/v1"
	requestTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar adds a handler set's routes to r.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

// routeGroup is one mounted surface of the engine.
type routeGroup struct {
	path       string
	register   RouteRegistrar
	middleware []middlewareFunc
}

type routerConfig struct {
	global  []middlewareFunc
	health  *HealthHandlers
	metrics http.Handler

	checkout routeGroup
	orders   routeGroup
	webhooks routeGroup
	internal routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: probes and metrics at the root, the checkout, order, webhook and
// internal groups under /api/v1. A group without a registrar answers 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		global:   []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
		orders:   routeGroup{path: "/orders"},
		webhooks: routeGroup{path: "/webhooks"},
		internal: routeGroup{path: "/internal"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	r := chi.NewRouter()
	use(r, cfg.global)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		msg := fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", msg, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		if cfg.checkout.register != nil {
			api.Group(func(g chi.Router) {
				use(g, cfg.checkout.middleware)
				cfg.checkout.register(g)
			})
		} else {
			api.HandleFunc("/checkout:preview", notImplemented("checkout"))
		}
		for name, group := range map[string]routeGroup{"orders": cfg.orders, "webhooks": cfg.webhooks, "internal": cfg.internal} {
			mountGroup(api, name, group)
		}
	})
	return r
}

func mountGroup(api chi.Router, name string, group routeGroup) {
	api.Route(group.path, func(g chi.Router) {
		use(g, group.middleware)
		if group.register != nil {
			group.register(g)
			return
		}
		h := notImplemented(name)
		g.HandleFunc("/", h)
		g.HandleFunc("/*", h)
		g.NotFound(h)
		g.MethodNotAllowed(h)
	})
}

func use(r chi.Router, mws []middlewareFunc) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func notImplemented(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
	}
}

// WithMiddlewares appends middleware applied to every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

// WithHealthHandlers serves /healthz and /readyz from h.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

// WithCheckoutRoutes registers the checkout preview. It runs on the API root since the route carries a
// custom verb suffix.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.checkout.register = reg }
}

// WithOrderRoutes registers the /orders group.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders.register = reg }
}

// WithWebhookRoutes registers the /webhooks group.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.webhooks.register = reg }
}

// WithWebhookMiddlewares guards the /webhooks group, typically with HMAC verification.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.webhooks.middleware = append(cfg.webhooks.middleware, mw...) }
}

// WithInternalRoutes registers the /internal group.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal.register = reg }
}

// WithInternalMiddlewares guards the /internal group, typically with OIDC service authentication.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.internal.middleware = append(cfg.internal.middleware, mw...) }
}
