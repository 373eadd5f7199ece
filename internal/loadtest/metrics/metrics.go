// Package metrics records prometheus instrumentation for the load pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "xapi_db_load_"

var batchesWrittenCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "batches_written",
		Help: "Number of batches successfully written to the sink",
	},
	[]string{"task"},
)

var rowsWrittenCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "rows_written",
		Help: "Number of rows successfully written to the sink",
	},
	[]string{"task"},
)

var itemFailuresCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "item_failures",
		Help: "Number of queue items that failed processing and were skipped",
	},
	[]string{"task"},
)

var loadJobsCounter = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: prefix + "load_jobs",
		Help: "Number of bulk-load jobs enqueued onto the fan-in load queue",
	},
)

var writeLatencyHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    prefix + "write_latency_seconds",
		Help:    "Sink write latency per batch in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	},
	[]string{"task"},
)

// RecordBatchWritten accounts one successful sink write of numRows rows.
func RecordBatchWritten(task string, numRows int, duration time.Duration) {
	batchesWrittenCounter.WithLabelValues(task).Inc()
	rowsWrittenCounter.WithLabelValues(task).Add(float64(numRows))
	writeLatencyHist.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordItemFailure accounts one queue item that failed and was skipped.
func RecordItemFailure(task string) {
	itemFailuresCounter.WithLabelValues(task).Inc()
}

// RecordLoadJob accounts one job added to the fan-in load queue.
func RecordLoadJob() {
	loadJobsCounter.Inc()
}
