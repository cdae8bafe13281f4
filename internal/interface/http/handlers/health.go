// Package handlers contains reusable HTTP building blocks: health checks
// and generic middleware.
package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// HealthChecker is what /health and /health/ready call.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc probes one dependency. A nil error means up.
type HealthCheckFunc func(ctx context.Context) error

// Pinger is implemented by the stores and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) HealthCheckFunc { return p.Ping }

// Overall states reported in HealthStatus.Status.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded" // optional dependency down, still serving
	StatusDown     = "down"     // critical dependency down
)

type HealthStatus struct {
	Status    string                 `json:"status"`
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type CheckResult struct {
	Healthy   bool   `json:"healthy"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type check struct {
	name     string
	fn       HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs its checks concurrently, each under its own timeout.
// Registration order is kept; re-adding a name replaces the earlier check.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  []check
	started time.Time
	version string
	timeout time.Duration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{started: time.Now(), version: version, timeout: 5 * time.Second}
}

func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// AddCheck registers a critical check. Its failure makes the service not ready.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.add(check{name: name, fn: fn, critical: true})
}

// AddOptionalCheck registers a check whose failure only degrades the status.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.add(check{name: name, fn: fn})
}

func (c *CompositeHealthChecker) add(ch check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = slices.DeleteFunc(c.checks, func(o check) bool { return o.name == ch.name })
	c.checks = append(c.checks, ch)
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(ctx, ch, timeout)
		}()
	}
	wg.Wait()

	st := HealthStatus{
		Status:    StatusOK,
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Version:   c.version,
		Timestamp: time.Now().UTC(),
	}
	var failed []string
	for i, ch := range checks {
		res := results[i]
		st.Checks[ch.name] = res
		if res.Healthy {
			continue
		}
		failed = append(failed, ch.name)
		st.Healthy = false
		if res.Critical {
			st.Ready = false
		}
	}

	switch {
	case !st.Ready:
		st.Status = StatusDown
	case !st.Healthy:
		st.Status = StatusDegraded
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		st.Message = "failing: " + strings.Join(failed, ", ")
	}
	return st
}

func run(ctx context.Context, ch check, timeout time.Duration) CheckResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := ch.fn(ctx)
	res := CheckResult{Healthy: err == nil, Critical: ch.critical, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
