// Package metrics exposes prometheus instrumentation for reload cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "binwatch"

// Metrics holds the reload instrumentation backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ReloadsStarted   prometheus.Counter
	ReloadsCompleted prometheus.Counter
	ReloadFailures   prometheus.Counter
	CopyDuration     prometheus.Histogram
}

// New creates the metrics set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_started_total",
			Help:      "Reload cycles initiated.",
		}),
		ReloadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_completed_total",
			Help:      "Reload cycles that finished successfully.",
		}),
		ReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reload_failures_total",
			Help:      "Reload cycles aborted by a fault.",
		}),
		CopyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "copy_duration_seconds",
			Help:      "Time spent copying build output per cycle, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.ReloadsStarted,
		m.ReloadsCompleted,
		m.ReloadFailures,
		m.CopyDuration,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the registry for mounting on the ops listener.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
