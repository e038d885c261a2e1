package neosample

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the default registry by promauto.
var (
	// QueriesTotal counts backing-store queries, labeled by query kind and outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neosample_store_queries_total",
			Help: "Total number of backing-store queries issued",
		},
		[]string{"kind", "status"},
	)

	// QueryDuration measures backing-store query latency including row decoding.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neosample_store_query_duration_seconds",
			Help:    "Duration of backing-store queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	// SampledEdges counts edges kept by the fanout sampler per edge type.
	SampledEdges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neosample_sampled_edges_total",
			Help: "Total number of sampled edges",
		},
		[]string{"edge_type"},
	)

	// SampleDuration measures whole sample calls.
	SampleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neosample_sample_duration_seconds",
			Help:    "Duration of neighbor sample calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	// EarlyStops counts sample calls that ended before the configured depth.
	EarlyStops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neosample_early_stops_total",
			Help: "Sample calls whose expansion stopped before the configured depth",
		},
	)
)

func observeQuery(kind string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	QueriesTotal.WithLabelValues(kind, status).Inc()
	QueryDuration.WithLabelValues(kind).Observe(seconds)
}
