package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) ComponentHealth   { return ComponentHealth{Healthy: true} }
func unhealthy(context.Context) ComponentHealth { return ComponentHealth{Healthy: false, Error: "down"} }

func TestCheckAggregatesComponents(t *testing.T) {
	mock := clock.NewMock()
	hc := NewHealthChecker("test", mock)
	hc.AddCheck("database", true, healthy)
	mock.Add(90 * time.Second)

	status := hc.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, int64(90), status.Uptime)
	assert.Contains(t, status.Checks, "database")
	assert.Contains(t, status.Checks, "goroutines")

	hc.AddCheck("rollup", false, unhealthy)
	status = hc.Check(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Checks["rollup"].Error)
}

func TestReadinessOnlyFollowsCriticalChecks(t *testing.T) {
	hc := NewHealthChecker("test", nil)
	hc.AddCheck("rollup", false, unhealthy)
	assert.True(t, hc.IsReady(context.Background()))

	hc.AddCheck("database", true, unhealthy)
	assert.False(t, hc.IsReady(context.Background()))
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil })(context.Background())
	assert.True(t, ok.Healthy)

	bad := PingCheck(func(context.Context) error { return errors.New("refused") })(context.Background())
	assert.False(t, bad.Healthy)
	assert.Equal(t, "ping failed: refused", bad.Error)
}

func TestRouter(t *testing.T) {
	hc := NewHealthChecker("test", nil)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	router := NewRouter(hc, metrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "test", status.Version)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/liveness", nil))
	assert.JSONEq(t, `{"alive":true}`, w.Body.String())

	hc.AddCheck("database", true, unhealthy)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"ready":false}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", w.Body.String())
}
