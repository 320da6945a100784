package sharing

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricItemsProcessed = "items_processed_total"
	MetricRunsCompleted  = "runs_completed_total"
	MetricRunSeconds     = "run_duration_seconds"
)

var CounterItemsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sharing",
		Name:      MetricItemsProcessed,
		Help:      "Share items processed by the engine, by task kind and outcome.",
	},
	[]string{
		"kind",
		"outcome",
	},
)

var CounterRunsCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sharing",
		Name:      MetricRunsCompleted,
		Help:      "Engine runs completed, by task kind.",
	},
	[]string{
		"kind",
	},
)

var HistogramRunSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sharing",
		Name:      MetricRunSeconds,
		Help:      "Duration of one engine run over a share.",
	},
	[]string{
		"kind",
	},
)

func init() {
	prometheus.MustRegister(CounterItemsProcessed)
	prometheus.MustRegister(CounterRunsCompleted)
	prometheus.MustRegister(HistogramRunSeconds)
}
