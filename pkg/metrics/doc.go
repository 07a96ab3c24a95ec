/*
Package metrics provides Prometheus metrics collection and exposition for the
indexer.

The metrics package defines and registers all indexer metrics using the
Prometheus client library, providing observability into entity counts,
operation throughput, tick-cycle latency and queue backlogs. Metrics are
exposed via an HTTP endpoint for scraping by Prometheus servers.

# Metrics Catalog

Entity and Operation Metrics:

golembase_indexer_entities_total{status}:
  - Type: Gauge
  - Description: Total entities by status (active, expired, deleted)

golembase_indexer_operations_processed_total{kind}:
  - Type: Counter
  - Description: Total operations applied to the entity state machine, by kind

golembase_indexer_operations_skipped_total{kind}:
  - Type: Counter
  - Description: Total operations skipped for failing a state precondition

golembase_indexer_tx_decode_failures_total:
  - Type: Counter
  - Description: Total storage transactions that failed to decode

Tick Metrics:

golembase_indexer_tick_duration_seconds:
  - Type: Histogram
  - Description: Duration of a tick cycle in seconds

golembase_indexer_tick_cycles_total:
  - Type: Counter
  - Description: Total tick cycles completed

golembase_indexer_tick_failures_total:
  - Type: Counter
  - Description: Total tick cycles that returned an error

Queue Metrics:

golembase_indexer_pending_queue_depth{queue}:
  - Type: Gauge
  - Description: Depth of a pending-operation queue (tx, log)

golembase_indexer_reindex_queue_depth:
  - Type: Gauge
  - Description: Depth of the entity reindex queue

Classifier and Scheduler Metrics:

golembase_indexer_classifier_duration_seconds:
  - Type: Histogram
  - Description: Time taken to classify one confirmed transaction

golembase_indexer_scheduler_expirations_total:
  - Type: Counter
  - Description: Total entities expired by the block-height scheduler

Storage-Usage and Supervisor Metrics:

golembase_indexer_dirty_blocks_total:
  - Type: Gauge
  - Description: Total blocks awaiting storage-usage recomputation

golembase_indexer_supervisor_restarts_total:
  - Type: Counter
  - Description: Total times the tick supervisor restarted after an error

# Usage

	import "github.com/golembase/indexer/pkg/metrics"

	metrics.EntitiesTotal.WithLabelValues("active").Set(120)
	metrics.OperationsProcessedTotal.WithLabelValues("create").Inc()

	timer := metrics.NewTimer()
	runTick()
	timer.ObserveDuration(metrics.TickDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/tick: records TickDuration, TickCyclesTotal, TickFailuresTotal, and
    TxDecodeFailuresTotal for each pending tx dropped as malformed
  - ClassifierDuration is registered and exported, but no call site
    observes it
  - pkg/statemachine (via pkg/tick): records OperationsProcessedTotal, OperationsSkippedTotal
  - pkg/scheduler: records SchedulerExpirationsTotal
  - pkg/repository (via Collector): refreshes EntitiesTotal, PendingQueueDepth, ReindexQueueDepth, DirtyBlocksTotal
  - pkg/indexer: records SupervisorRestartsTotal
  - Prometheus: scrapes /metrics endpoint
*/
package metrics
