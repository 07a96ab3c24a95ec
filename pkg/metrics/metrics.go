package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity metrics
	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "golembase_indexer_entities_total",
			Help: "Total number of entities by status",
		},
		[]string{"status"},
	)

	// Operation metrics
	OperationsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golembase_indexer_operations_processed_total",
			Help: "Total number of operations applied to the entity state machine, by kind",
		},
		[]string{"kind"},
	)

	OperationsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golembase_indexer_operations_skipped_total",
			Help: "Total number of operations skipped for failing a state precondition, by kind",
		},
		[]string{"kind"},
	)

	TxDecodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golembase_indexer_tx_decode_failures_total",
			Help: "Total number of storage transactions that failed to decode",
		},
	)

	// Tick metrics
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "golembase_indexer_tick_duration_seconds",
			Help:    "Time taken to complete a tick cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TickCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golembase_indexer_tick_cycles_total",
			Help: "Total number of tick cycles completed",
		},
	)

	TickFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golembase_indexer_tick_failures_total",
			Help: "Total number of tick cycles that returned an error",
		},
	)

	// Queue metrics
	PendingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "golembase_indexer_pending_queue_depth",
			Help: "Depth of a pending-operation queue, by queue name",
		},
		[]string{"queue"},
	)

	ReindexQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "golembase_indexer_reindex_queue_depth",
			Help: "Depth of the entity reindex queue",
		},
	)

	// Classifier metrics
	ClassifierDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "golembase_indexer_classifier_duration_seconds",
			Help:    "Time taken to classify one confirmed transaction into operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	SchedulerExpirationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golembase_indexer_scheduler_expirations_total",
			Help: "Total number of entities expired by the block-height scheduler",
		},
	)

	// Storage-usage metrics
	DirtyBlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "golembase_indexer_dirty_blocks_total",
			Help: "Total number of blocks awaiting storage-usage recomputation",
		},
	)

	// Supervisor metrics
	SupervisorRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golembase_indexer_supervisor_restarts_total",
			Help: "Total number of times the tick supervisor restarted after an error",
		},
	)
)

func init() {
	// Register entity and operation metrics
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(OperationsProcessedTotal)
	prometheus.MustRegister(OperationsSkippedTotal)
	prometheus.MustRegister(TxDecodeFailuresTotal)

	// Register tick metrics
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(TickCyclesTotal)
	prometheus.MustRegister(TickFailuresTotal)

	// Register queue metrics
	prometheus.MustRegister(PendingQueueDepth)
	prometheus.MustRegister(ReindexQueueDepth)

	// Register classifier and scheduler metrics
	prometheus.MustRegister(ClassifierDuration)
	prometheus.MustRegister(SchedulerExpirationsTotal)

	// Register storage-usage and supervisor metrics
	prometheus.MustRegister(DirtyBlocksTotal)
	prometheus.MustRegister(SupervisorRestartsTotal)
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
