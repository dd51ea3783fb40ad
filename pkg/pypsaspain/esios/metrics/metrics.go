// Package metrics exposes Prometheus instrumentation for the
// indicator retrieval service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "pypsa_spain"
	subsystem = "esios"
)

var (
	// RetrievalsTotal counts indicator retrievals by outcome
	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retrievals_total",
			Help:      "Number of indicator retrievals by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	// RetrievedPoints counts the indicator points fetched from the API
	RetrievedPoints = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retrieved_points_total",
			Help:      "Number of indicator points fetched from the API",
		},
	)

	// ArchivedPoints counts the points written to the local archive
	ArchivedPoints = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archived_points_total",
			Help:      "Number of indicator points written to the archive",
		},
	)

	// CacheHits reflects the response cache hit counter
	CacheHits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits",
			Help:      "Cumulative response cache hits",
		},
	)

	// CacheMisses reflects the response cache miss counter
	CacheMisses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses",
			Help:      "Cumulative response cache misses",
		},
	)

	// LastRetrievalTimestamp records when the last successful retrieval finished
	LastRetrievalTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_retrieval_timestamp_seconds",
			Help:      "Unix timestamp of the last successful retrieval",
		},
	)
)

func init() {
	// Register metrics with Prometheus
	prometheus.MustRegister(RetrievalsTotal)
	prometheus.MustRegister(RetrievedPoints)
	prometheus.MustRegister(ArchivedPoints)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(LastRetrievalTimestamp)
}
