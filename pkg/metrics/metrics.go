package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Blob store metrics
	BlobPutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_blob_puts_total",
			Help: "Total number of single blobs written to the blob store",
		},
	)

	BlobBytesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_blob_bytes_stored_total",
			Help: "Total enveloped bytes written to the blob store",
		},
	)

	PacksWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_packs_written_total",
			Help: "Total number of packs finalized and stored",
		},
	)

	PackReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_pack_reads_total",
			Help: "Total number of blob reads served from packs",
		},
	)

	PackDecodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_pack_decode_duration_seconds",
			Help:    "Time taken to decode a blob and its dictionary chain",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Commit graph metrics
	IDsAssignedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_dag_ids_assigned_total",
			Help: "Total number of integer IDs assigned to vertexes",
		},
	)

	AssignHeadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_dag_assign_head_duration_seconds",
			Help:    "Time taken by one assign-head call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cross-repo sync metrics
	SyncOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_outcomes_total",
			Help: "Total number of sync plans by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_sync_commit_duration_seconds",
			Help:    "Time taken to plan and persist one commit sync",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_sync_persist_retries_total",
			Help: "Total number of retried mapping/blob persistence attempts",
		},
	)

	BacksyncBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_backsync_batches_total",
			Help: "Total number of backsync batches completed",
		},
	)
)

func init() {
	prometheus.MustRegister(BlobPutsTotal)
	prometheus.MustRegister(BlobBytesStored)
	prometheus.MustRegister(PacksWrittenTotal)
	prometheus.MustRegister(PackReadsTotal)
	prometheus.MustRegister(PackDecodeDuration)
	prometheus.MustRegister(IDsAssignedTotal)
	prometheus.MustRegister(AssignHeadDuration)
	prometheus.MustRegister(SyncOutcomesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncRetriesTotal)
	prometheus.MustRegister(BacksyncBatchesTotal)
}

// Handler returns the HTTP handler exposing the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
