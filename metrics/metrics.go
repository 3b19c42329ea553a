// Package metrics provides Prometheus metrics for the attendance engine.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder outcome labels.
const (
	OutcomeInserted        = "inserted"
	OutcomeDuplicate       = "duplicate"
	OutcomeLegacy          = "legacy"
	OutcomeLegacyDuplicate = "legacy_duplicate"
	OutcomeError           = "error"
)

// Session action labels.
const (
	SessionOpened    = "opened"
	SessionCollision = "collision"
	SessionClosed    = "closed"
)

// Wipe result labels.
const (
	WipeOK       = "ok"
	WipeRejected = "rejected"
	WipeFailed   = "failed"
)

// Metrics holds every collector of the engine on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	records       *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	statsDuration *prometheus.HistogramVec
	wipes         *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// New creates the metrics and registers them, plus Go runtime and process
// collectors, on a fresh registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}
	m.initMetrics()

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register attendance metrics: %w", err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_records_total",
			Help: "Recognition events handled by the recorder, by outcome",
		},
		[]string{"outcome"},
	)

	m.sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sessions_total",
			Help: "Session lifecycle events",
		},
		[]string{"action"},
	)

	m.statsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_stats_duration_seconds",
			Help:    "Time taken to compute a statistics view",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"view"},
	)

	m.wipes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_wipes_total",
			Help: "Admin wipe attempts, by result",
		},
		[]string{"result"},
	)

	m.collectors = []prometheus.Collector{m.records, m.sessions, m.statsDuration, m.wipes}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RecordOutcome counts one recorder call.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(outcome).Inc()
}

// SessionEvent counts one lifecycle event.
func (m *Metrics) SessionEvent(action string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(action).Inc()
}

// ObserveStats records how long a statistics view took.
func (m *Metrics) ObserveStats(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.statsDuration.WithLabelValues(view).Observe(d.Seconds())
}

// WipeResult counts an admin wipe.
func (m *Metrics) WipeResult(result string) {
	if m == nil {
		return
	}
	m.wipes.WithLabelValues(result).Inc()
}
