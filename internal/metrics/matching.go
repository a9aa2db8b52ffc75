package metrics

import "github.com/prometheus/client_golang/prometheus"

// Matching Prometheus metrics.
var (
	MatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "match_runs_total",
			Help:      "Total matching runs by origin and outcome",
		},
		[]string{"origin", "status"}, // origin: http / request_created / found_created / backfill
	)

	MatchRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Name:      "match_run_duration_seconds",
			Help:      "Matching run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"origin"},
	)

	MatchesPersisted = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Name:      "matches_persisted",
			Help:      "Matches persisted per reconcile",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	SyntheticDistanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "synthetic_distance_total",
			Help:      "Candidates whose distance was synthesized because the index omitted it",
		},
	)
)

// RegisterMatchingMetrics registers Prometheus matching metrics. Must be called once from main.
func RegisterMatchingMetrics() {
	prometheus.MustRegister(
		MatchRunsTotal,
		MatchRunDuration,
		MatchesPersisted,
		SyntheticDistanceTotal,
	)
}
