package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hanko-field/orderengine/internal/platform/health"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
)

const defaultReadinessTimeout = 3 * time.Second

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checker *health.Checker
	started time.Time
	clock   func() time.Time
	timeout time.Duration
}

// NewHealthHandlers constructs health handlers. A nil checker reports ready unconditionally.
func NewHealthHandlers(checker *health.Checker) *HealthHandlers {
	return &HealthHandlers{
		checker: checker,
		started: time.Now(),
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
	}
}

type healthResult struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

type healthResponse struct {
	Status    string                  `json:"status"`
	Uptime    string                  `json:"uptime"`
	Timestamp string                  `json:"timestamp"`
	Checks    map[string]healthResult `json:"checks,omitempty"`
}

// Healthz reports liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    string(health.StatusOK),
		Uptime:    now.Sub(h.started).Round(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs the dependency probes. Degraded dependencies still report ready; failed ones do not.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	resp := healthResponse{
		Status:    string(health.StatusOK),
		Uptime:    now.Sub(h.started).Round(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if h.checker == nil {
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	report := h.checker.Run(ctx)
	resp.Status = string(report.Status)
	resp.Checks = make(map[string]healthResult, len(report.Checks))
	for name, res := range report.Checks {
		resp.Checks[name] = healthResult{Status: string(res.Status), Detail: res.Detail, LatencyMS: res.Latency.Milliseconds()}
	}
	status := http.StatusOK
	if report.Status == health.StatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}
