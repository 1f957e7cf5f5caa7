// Package metrics exposes the Prometheus collectors of the activity monitor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "activity"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	presenceEvents  *prometheus.CounterVec
	presenceDropped *prometheus.CounterVec
	rollupRuns      *prometheus.CounterVec
	rollupDuration  prometheus.Histogram
	rollupRows      prometheus.Counter
	rollupDeleted   prometheus.Counter
	lastRollup      prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		presenceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Presence changes recorded, by parsed state.",
		}, []string{"state"}),
		presenceDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_dropped_total",
			Help:      "Presence changes not recorded, by reason.",
		}, []string{"reason"}),
		rollupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_runs_total",
			Help:      "Roll-up runs by result.",
		}, []string{"result"}),
		rollupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollup_duration_seconds",
			Help:      "Duration of roll-up runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rollupRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_rows_written_total",
			Help:      "Stats rows written by roll-ups.",
		}),
		rollupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_raw_events_deleted_total",
			Help:      "Raw events removed after compaction.",
		}),
		lastRollup: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rollup_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful roll-up.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.presenceEvents,
		m.presenceDropped,
		m.rollupRuns,
		m.rollupDuration,
		m.rollupRows,
		m.rollupDeleted,
		m.lastRollup,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PresenceRecorded(state string) {
	if m == nil {
		return
	}
	m.presenceEvents.WithLabelValues(state).Inc()
}

// PresenceDropped counts an event that was not stored. reason is
// "unknown_user" or "store_error".
func (m *Metrics) PresenceDropped(reason string) {
	if m == nil {
		return
	}
	m.presenceDropped.WithLabelValues(reason).Inc()
}

// RollupFinished records one roll-up run.
func (m *Metrics) RollupFinished(duration time.Duration, rows, deleted int64, err error) {
	if m == nil {
		return
	}
	m.rollupDuration.Observe(duration.Seconds())
	m.rollupRows.Add(float64(rows))
	m.rollupDeleted.Add(float64(deleted))
	if err != nil {
		m.rollupRuns.WithLabelValues("failure").Inc()
		return
	}
	m.rollupRuns.WithLabelValues("success").Inc()
	m.lastRollup.SetToCurrentTime()
}

func (m *Metrics) HTTPRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}
