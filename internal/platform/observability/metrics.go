package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "orderengine"

// Metrics owns the Prometheus registry exposed at /metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated    *prometheus.CounterVec
	ordersCancelled  prometheus.Counter
	refundFailures   prometheus.Counter
	stockConflicts   prometheus.Counter
	quoteExpired     prometheus.Counter
	transitions      *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewMetrics registers the order engine collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_created_total",
			Help:      "Orders committed by the create workflow, by initial payment status.",
		}, []string{"payment_status"}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_cancelled_total",
			Help:      "Orders committed as cancelled.",
		}),
		refundFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refund_failures_total",
			Help:      "Cancellations whose refund failed and needs manual action.",
		}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stock_conflicts_total",
			Help:      "Checkouts rejected because stock was insufficient at commit.",
		}),
		quoteExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quote_expired_total",
			Help:      "Checkouts rejected because the locked shipping quote was stale.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "order_transitions_total",
			Help:      "Fulfillment status transitions applied.",
		}, []string{"to"}),
		checkoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "checkout_duration_seconds",
			Help:      "Wall time of the create workflow.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersCreated,
		m.ordersCancelled,
		m.refundFailures,
		m.stockConflicts,
		m.quoteExpired,
		m.transitions,
		m.checkoutDuration,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderCreated(paymentStatus string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(paymentStatus).Inc()
}

func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *Metrics) RefundFailed() {
	if m == nil {
		return
	}
	m.refundFailures.Inc()
}

func (m *Metrics) StockConflict() {
	if m == nil {
		return
	}
	m.stockConflicts.Inc()
}

func (m *Metrics) QuoteExpired() {
	if m == nil {
		return
	}
	m.quoteExpired.Inc()
}

func (m *Metrics) StatusTransitioned(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// ObserveCheckout records the duration of one create attempt. outcome is "ok" or an error kind.
func (m *Metrics) ObserveCheckout(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.checkoutDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// HTTPMiddleware counts requests per chi route pattern.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := newResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)
			route := SanitizeRoute(routePattern(r))
			method := SanitizeMethod(r.Method)
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(recorder.Status())).Inc()
			m.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		})
	}
}
