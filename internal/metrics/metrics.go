// Package metrics defines the core's Prometheus instrument registry: a
// struct of counters and gauges constructed once per process and passed
// down to every component that reports an operation outcome.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the full set of instruments the core registers. The export
// format (the Prometheus text endpoint itself) is left to whichever
// collaborator owns /metrics; this registry only produces and registers the
// instruments.
type Metrics struct {
	Inserts      *prometheus.CounterVec
	Queries      *prometheus.CounterVec
	Deletes      *prometheus.CounterVec
	Compactions  *prometheus.CounterVec

	WALSizeBytes        *prometheus.GaugeVec
	PendingUploads      *prometheus.GaugeVec
	DLQDepth            *prometheus.GaugeVec
	UploadFailures      *prometheus.CounterVec
	LastSnapshotAt      *prometheus.GaugeVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New constructs and registers every instrument against reg. Every vector is
// labeled by collection_id so per-collection dashboards and alerts work
// without a separate registry per collection.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Inserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "akidb_inserts_total",
			Help: "Number of successful vector inserts, by collection.",
		}, []string{"collection_id"}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "akidb_queries_total",
			Help: "Number of vector search/get operations, by collection.",
		}, []string{"collection_id"}),
		Deletes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "akidb_deletes_total",
			Help: "Number of successful vector deletes, by collection.",
		}, []string{"collection_id"}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "akidb_compactions_total",
			Help: "Number of completed compaction cycles, by collection.",
		}, []string{"collection_id"}),
		WALSizeBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "akidb_wal_size_bytes",
			Help: "Current on-disk size of the WAL for a collection.",
		}, []string{"collection_id"}),
		PendingUploads: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "akidb_pending_uploads",
			Help: "Number of object-store uploads queued but not yet confirmed.",
		}, []string{"collection_id"}),
		DLQDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "akidb_dlq_depth",
			Help: "Number of entries currently queued in the dead-letter retry queue.",
		}, []string{"collection_id"}),
		UploadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "akidb_upload_failures_total",
			Help: "Number of uploads dropped after a permanent backend failure.",
		}, []string{"collection_id"}),
		LastSnapshotAt: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "akidb_last_snapshot_at",
			Help: "Unix timestamp of the most recent successful compaction snapshot.",
		}, []string{"collection_id"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "akidb_circuit_breaker_state",
			Help: "Object-store circuit breaker state (0=closed, 1=open), by collection.",
		}, []string{"collection_id"}),
	}
}
