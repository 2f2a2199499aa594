// Package metrics exposes Prometheus instrumentation for the pipeline.
// A Registry is injected where needed; nothing registers globally so
// tests can use isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	PhasesCompleted  *prometheus.CounterVec
	PhasesFailed     *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	WorkflowsStarted *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		PhasesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelforge",
			Name:      "phases_completed_total",
			Help:      "Phases that reached COMPLETED, by phase name.",
		}, []string{"phase"}),
		PhasesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelforge",
			Name:      "phases_failed_total",
			Help:      "Phases that reached FAILED, by phase name.",
		}, []string{"phase"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelforge",
			Name:      "phase_duration_seconds",
			Help:      "Wall time per phase execution.",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		WorkflowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelforge",
			Name:      "workflows_started_total",
			Help:      "Workflow runs started, by type.",
		}, []string{"type"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelforge",
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end workflow run time, by type and outcome.",
			Buckets:   []float64{1, 10, 60, 300, 600, 1200, 1800, 3600},
		}, []string{"type", "outcome"}),
	}

	reg.MustRegister(
		m.PhasesCompleted,
		m.PhasesFailed,
		m.PhaseDuration,
		m.WorkflowsStarted,
		m.WorkflowDuration,
	)
	return m
}

// TrackBus registers counters fed by the bus's own delivery counters.
// Taking functions keeps this package decoupled from the bus type.
func (m *Metrics) TrackBus(delivered, dropped func() int64) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "reelforge",
			Name:      "bus_messages_delivered_total",
			Help:      "Bus messages dispatched to at least one subscriber.",
		}, func() float64 { return float64(delivered()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "reelforge",
			Name:      "bus_messages_dropped_total",
			Help:      "Bus messages dropped for lack of a subscriber or queue capacity.",
		}, func() float64 { return float64(dropped()) }),
	)
}

// Registry returns the underlying registry, for the HTTP exposition
// handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
