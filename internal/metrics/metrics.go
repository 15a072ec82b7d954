// Package metrics holds the Prometheus collectors for the content index and
// the library importer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every coach collector is registered on.
var Registry = prometheus.NewRegistry()

var (
	ImportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_import_runs_total",
			Help: "Library import runs by outcome",
		},
		[]string{"outcome"},
	)
	EntriesIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coach_import_entries_indexed_total",
			Help: "Content entries embedded and written to the vector index",
		},
	)
	EntriesReused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coach_import_entries_reused_total",
			Help: "Content entries whose existing vector was reused",
		},
	)
	IndexOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_index_operations_total",
			Help: "Vector index operations by kind and result",
		},
		[]string{"op", "result"},
	)
	IndexOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coach_index_operation_duration_seconds",
			Help:    "Latency of vector index operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"op"},
	)
	IOFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_index_io_failures_total",
			Help: "Shard file I/O failures by stage",
		},
		[]string{"stage"},
	)
	IndexRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coach_index_records",
			Help: "Live vectors per shard",
		},
		[]string{"shard"},
	)
)

func init() {
	Registry.MustRegister(ImportRuns, EntriesIndexed, EntriesReused, IndexOps, IndexOpDuration, IOFailures, IndexRecords)
}

// ObserveOp records one index operation's latency and result.
func ObserveOp(op string, start time.Time, err error) {
	IndexOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	IndexOps.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
