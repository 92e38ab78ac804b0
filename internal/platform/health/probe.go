// Package health runs dependency probes for the readiness endpoint.
package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status is the outcome of a probe or of the whole report.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// Probe checks one dependency, such as Firestore, Redis or the event sink.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// Result is the outcome of one probe.
type Result struct {
	Status    Status        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latencyMs"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Report aggregates every probe. Any error makes the report an error; any other failure degrades it.
type Report struct {
	Status      Status            `json:"status"`
	Checks      map[string]Result `json:"checks"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// Checker runs probes concurrently, each with its own timeout.
type Checker struct {
	probes []Probe
	now    func() time.Time
}

// NewChecker constructs a Checker. Probes without a name or check function are ignored.
func NewChecker(probes ...Probe) *Checker {
	c := &Checker{now: time.Now}
	for _, p := range probes {
		if p.Name != "" && p.Check != nil {
			c.probes = append(c.probes, p)
		}
	}
	return c
}

// Run executes every probe and waits for all of them.
func (c *Checker) Run(ctx context.Context) Report {
	results := make(map[string]Result, len(c.probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, probe := range c.probes {
		wg.Add(1)
		go func(probe Probe) {
			defer wg.Done()
			res := c.run(ctx, probe)
			mu.Lock()
			results[probe.Name] = res
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	status := StatusOK
	for _, res := range results {
		switch {
		case res.Status == StatusError:
			status = StatusError
		case res.Status == StatusDegraded && status == StatusOK:
			status = StatusDegraded
		}
	}
	return Report{Status: status, Checks: results, GeneratedAt: c.now()}
}

func (c *Checker) run(ctx context.Context, probe Probe) Result {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.now()
	err := probe.Check(probeCtx)
	end := c.now()
	res := Result{Status: StatusOK, Latency: end.Sub(start), CheckedAt: end}
	switch {
	case err == nil && probeCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		res.Status, res.Detail = StatusError, "timeout"
	case errors.Is(err, context.Canceled):
		res.Status, res.Detail = StatusError, "cancelled"
	default:
		res.Status, res.Detail = StatusDegraded, err.Error()
	}
	return res
}
