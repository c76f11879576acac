package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Substrate-level metrics
	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_collections_total",
			Help: "Number of collections currently open",
		},
	)

	SnapshotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_snapshots_total",
			Help: "Number of live snapshots",
		},
	)

	YoungestSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_youngest_sequence",
			Help: "Most recently assigned commit sequence number",
		},
	)

	// Operation metrics
	ReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_reads_total",
			Help: "Total read tasks by view (head, txn, snapshot)",
		},
		[]string{"view"},
	)

	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_writes_total",
			Help: "Total write tasks by view (head, txn)",
		},
		[]string{"view"},
	)

	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_scans_total",
			Help: "Total scan tasks",
		},
	)

	ReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_read_duration_seconds",
			Help:    "Batched read latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_write_duration_seconds",
			Help:    "Batched write latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_commits_total",
			Help: "Total successful transaction commits",
		},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_conflicts_total",
			Help: "Total transactions aborted with a conflict",
		},
	)

	DoubleCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_double_commits_total",
			Help: "Total commits rejected for reusing a sequence number",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_commit_duration_seconds",
			Help:    "Commit critical-section latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_flush_duration_seconds",
			Help:    "Durability flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Modality metrics
	DocWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_doc_writes_total",
			Help: "Total document write tasks by format",
		},
		[]string{"format"},
	)

	GathersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_gathers_total",
			Help: "Total gather cells produced (documents x columns)",
		},
	)

	GraphUpsertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_graph_edge_upserts_total",
			Help: "Total graph edge upsert tasks",
		},
	)

	GraphRemovalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_graph_edge_removals_total",
			Help: "Total graph edge removal tasks",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(YoungestSequence)
	prometheus.MustRegister(ReadsTotal)
	prometheus.MustRegister(WritesTotal)
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ReadDuration)
	prometheus.MustRegister(WriteDuration)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(DoubleCommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(DocWritesTotal)
	prometheus.MustRegister(GathersTotal)
	prometheus.MustRegister(GraphUpsertsTotal)
	prometheus.MustRegister(GraphRemovalsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
