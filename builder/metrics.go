package builder

import "github.com/prometheus/client_golang/prometheus"

// Metric placement follows the teacher's convention in
// indexes/index_manager.go: declare the Prometheus collectors right
// beside the build loop that updates them.

var ExtentsIndexed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indextuner",
	Subsystem: "builder",
	Name:      "extents_indexed_total",
}, []string{"table", "index"})

var RowErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indextuner",
	Subsystem: "builder",
	Name:      "row_errors_total",
}, []string{"table", "index"})

var Corruptions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indextuner",
	Subsystem: "builder",
	Name:      "index_corruptions_total",
}, []string{"table", "index"})

var StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "indextuner",
	Subsystem: "builder",
	Name:      "build_step_duration_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"table"})
