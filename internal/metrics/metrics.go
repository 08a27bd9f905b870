package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gradeq"

var (
	SubmissionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_processed_total",
			Help:      "Total number of submissions that reached a terminal status.",
		},
		[]string{"status"},
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of per-submission stage failures.",
		},
		[]string{"stage"},
	)

	StageLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of each pipeline stage per submission (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	OpenInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_instances",
			Help:      "Number of currently running application instances under test.",
		},
	)

	BatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Current batch size chosen by the orchestrator.",
		},
	)

	ProbeInteractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_interactions_total",
			Help:      "UI interactions attempted by probe strategies, labeled by outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	StrategyFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_fallbacks_total",
			Help:      "Outright strategy failures that caused a fallback to the next engine.",
		},
		[]string{"from"},
	)
)

func init() {
	prometheus.MustRegister(
		SubmissionsProcessedTotal,
		StageFailuresTotal,
		StageLatencySeconds,
		OpenInstances,
		BatchSize,
		ProbeInteractionsTotal,
		StrategyFallbacksTotal,
	)
}
