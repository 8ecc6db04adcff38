// Package metrics exposes Prometheus collectors for the dispatch engine.
//
// A nil *Metrics is valid and records nothing, so the engine can run
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "schemahost"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the engine collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec   // by procedure, outcome, kind
	callDuration *prometheus.HistogramVec // by outcome
	callDepth    prometheus.Histogram
	foreign      *prometheus.CounterVec // by outcome, kind
	deploys      *prometheus.CounterVec // by outcome
	schemas      prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Top-level calls by procedure, outcome and error kind.",
		}, []string{"procedure", "outcome", "kind"}),

		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Top-level call latency including commit or rollback.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"outcome"}),

		callDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "call_depth",
			Help:      "Deepest nested invocation reached per top-level call.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),

		foreign: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "foreign_calls_total",
			Help:      "Foreign procedure resolutions by outcome and error kind.",
		}, []string{"outcome", "kind"}),

		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "deploys_total",
			Help:      "Schema deployments by outcome.",
		}, []string{"outcome"}),

		schemas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "schemas",
			Help:      "Number of registered schemas.",
		}),
	}

	m.registry.MustRegister(
		m.calls,
		m.callDuration,
		m.callDepth,
		m.foreign,
		m.deploys,
		m.schemas,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to serve on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCall records one top-level call. kind is empty on success.
func (m *Metrics) ObserveCall(procedure, kind string, depth int, d time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeOf(kind)
	m.calls.WithLabelValues(procedure, outcome, kind).Inc()
	m.callDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.callDepth.Observe(float64(depth))
}

// ObserveForeign records one foreign resolution.
func (m *Metrics) ObserveForeign(kind string) {
	if m == nil {
		return
	}
	m.foreign.WithLabelValues(outcomeOf(kind), kind).Inc()
}

// ObserveDeploy records one deployment and the resulting registry size.
func (m *Metrics) ObserveDeploy(kind string, schemas int) {
	if m == nil {
		return
	}
	m.deploys.WithLabelValues(outcomeOf(kind)).Inc()
	m.schemas.Set(float64(schemas))
}

func outcomeOf(kind string) string {
	if kind == "" {
		return OutcomeOK
	}
	return OutcomeError
}
