package health

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// HealthStatus represents the overall health of the application
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded"
	Timestamp time.Time                  `json:"timestamp"`
	Version   string                     `json:"version"`
	Uptime    int64                      `json:"uptime_seconds"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Duration  int64                      `json:"duration_ms"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool        `json:"healthy"`
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CheckFunc reports the health of one component.
type CheckFunc func(ctx context.Context) ComponentHealth

// HealthChecker provides health check functionality
type HealthChecker struct {
	version   string
	clock     clock.Clock
	startTime time.Time

	mu       sync.RWMutex
	checks   map[string]CheckFunc
	critical map[string]bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, clk clock.Clock) *HealthChecker {
	if clk == nil {
		clk = clock.New()
	}
	hc := &HealthChecker{
		version:   version,
		clock:     clk,
		startTime: clk.Now(),
		checks:    make(map[string]CheckFunc),
		critical:  make(map[string]bool),
	}
	hc.AddCheck("goroutines", false, checkGoroutines)
	return hc
}

// AddCheck registers a named check. A failing critical check also fails
// readiness.
func (hc *HealthChecker) AddCheck(name string, critical bool, fn CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = fn
	hc.critical[name] = critical
}

// Check performs a complete health check
func (hc *HealthChecker) Check(ctx context.Context) HealthStatus {
	start := hc.clock.Now()
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: start,
		Version:   hc.version,
		Uptime:    int64(start.Sub(hc.startTime).Seconds()),
		Checks:    make(map[string]ComponentHealth),
	}

	for _, name := range hc.names() {
		result := hc.run(ctx, name)
		status.Checks[name] = result
		if !result.Healthy {
			status.Status = "degraded"
		}
	}

	status.Duration = hc.clock.Since(start).Milliseconds()
	return status
}

// IsReady returns true if every critical check passes.
func (hc *HealthChecker) IsReady(ctx context.Context) bool {
	for _, name := range hc.names() {
		hc.mu.RLock()
		critical := hc.critical[name]
		hc.mu.RUnlock()

		if critical && !hc.run(ctx, name).Healthy {
			return false
		}
	}
	return true
}

// IsAlive returns true while the process can answer at all.
func (hc *HealthChecker) IsAlive() bool {
	return true
}

func (hc *HealthChecker) names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (hc *HealthChecker) run(ctx context.Context, name string) ComponentHealth {
	hc.mu.RLock()
	fn := hc.checks[name]
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return fn(ctx)
}

// PingCheck turns a ping function into a check reporting its latency.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return ComponentHealth{Healthy: false, Error: "ping failed: " + err.Error()}
		}
		return ComponentHealth{
			Healthy: true,
			Details: map[string]interface{}{"latency_ms": time.Since(start).Milliseconds()},
		}
	}
}

func checkGoroutines(context.Context) ComponentHealth {
	count := runtime.NumGoroutine()
	return ComponentHealth{
		Healthy: count < 10000, // Alert if > 10k goroutines
		Details: map[string]interface{}{"count": count},
	}
}
