// Package metrics provides Prometheus metrics for the directory service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for SourceQueriesTotal.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeBroken   = "broken"
	OutcomeDiscards = "discarded"
)

var (
	// SourceQueriesTotal counts per-source plugin calls.
	SourceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "directory",
			Subsystem: "source",
			Name:      "queries_total",
			Help:      "Total number of source plugin queries by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// SourceQueryDuration tracks per-source plugin latency in seconds.
	SourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "directory",
			Subsystem: "source",
			Name:      "query_duration_seconds",
			Help:      "Duration of source plugin queries in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"backend", "operation"},
	)

	// AggregationDuration tracks end-to-end aggregation latency per operation.
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "directory",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of lookup, reverse and favorites operations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	// WorkersInFlight tracks tasks currently holding a worker pool slot.
	WorkersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "directory",
			Subsystem: "engine",
			Name:      "workers_in_flight",
			Help:      "Number of source tasks currently running in the worker pool",
		},
	)

	// EventsConsumedTotal counts inbound bus events by name and status.
	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "directory",
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Total number of inbound events handled by name and status",
		},
		[]string{"name", "status"},
	)

	// EventsPublishedTotal counts outbound bus events by name and status.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "directory",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of outbound events by name and status",
		},
		[]string{"name", "status"},
	)

	// SourcesLoaded tracks the registry content by backend and state.
	SourcesLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "directory",
			Subsystem: "registry",
			Name:      "sources",
			Help:      "Number of sources held by the plugin registry by backend and state",
		},
		[]string{"backend", "state"},
	)
)
