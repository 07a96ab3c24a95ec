// Package tick drives the indexer's per-cycle work: draining the pending
// operation queues one after the other, folding each source transaction's
// operations through the state machine, reconciling entities queued for
// reindex, and advancing the block-height expiration scheduler. Start/Stop
// wrap a stateless Tick() behind a ticker-driven run loop; each step is a
// database-driven drain rather than an in-memory list comparison.
package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/golembase/indexer/pkg/classifier"
	"github.com/golembase/indexer/pkg/indexererr"
	"github.com/golembase/indexer/pkg/log"
	"github.com/golembase/indexer/pkg/metrics"
	"github.com/golembase/indexer/pkg/repository"
	"github.com/golembase/indexer/pkg/scheduler"
	"github.com/golembase/indexer/pkg/statemachine"
	"github.com/golembase/indexer/pkg/types"
)

// batchSize bounds how many pending-queue rows a single Tick call drains,
// so one cycle never holds the database open indefinitely under a large
// backlog; the outer loop simply calls Tick again.
const batchSize = 500

// Engine drains pending_tx_ops in (block_number, tx_index) order and then
// pending_log_ops in (block_number, log_index) order, applying their effect
// to entity state one source transaction at a time. The two queues are not
// interleaved: every queued storage transaction in a batch is applied before
// any housekeeping log, whatever their block numbers.
type Engine struct {
	repo   *repository.Repository
	sched  *scheduler.Scheduler
	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}
}

// New returns an Engine bound to repo.
func New(repo *repository.Repository) *Engine {
	return &Engine{
		repo:   repo,
		sched:  scheduler.New(),
		logger: log.WithComponent("tick"),
		stopCh: make(chan struct{}),
	}
}

// Start runs Tick on a fixed interval until Stop is called, logging but not
// propagating per-cycle errors.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	go e.run(ctx, interval)
}

// Stop ends the Start loop.
func (e *Engine) Stop() {
	close(e.stopCh)
}

func (e *Engine) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().Msg("tick engine started")

	for {
		select {
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error().Err(err).Msg("tick cycle failed")
			}
		case <-ctx.Done():
			e.logger.Info().Msg("tick engine stopped: context cancelled")
			return
		case <-e.stopCh:
			e.logger.Info().Msg("tick engine stopped")
			return
		}
	}
}

// Tick runs one full cycle: drain pending_tx_ops, drain pending_log_ops,
// reconcile entities_to_reindex, and advance the expiration scheduler.
// Affected blocks are flagged dirty in block_stats as a side effect of
// applying each operation; clearing that flag belongs to the aggregate-view
// refresher, a separate process outside this package. Tick is idempotent
// and a no-op when no work is queued; safe to call repeatedly or
// concurrently with itself (each source transaction commits
// independently).
func (e *Engine) Tick(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := uuid.NewString()
	logger := e.logger.With().Str("run_id", runID).Logger()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.TickDuration)
		metrics.TickCyclesTotal.Inc()
		if err != nil {
			metrics.TickFailuresTotal.Inc()
		}
	}()

	txCount, err := e.drainPendingTxOps(ctx, logger)
	if err != nil {
		return fmt.Errorf("drain pending tx ops: %w", err)
	}

	logCount, err := e.drainPendingLogOps(ctx, logger)
	if err != nil {
		return fmt.Errorf("drain pending log ops: %w", err)
	}

	reindexCount, err := e.drainReindexQueue(ctx, logger)
	if err != nil {
		return fmt.Errorf("drain reindex queue: %w", err)
	}

	expired, err := e.advanceScheduler(ctx, logger)
	if err != nil {
		return fmt.Errorf("advance scheduler: %w", err)
	}

	if txCount+logCount+reindexCount+expired > 0 {
		logger.Info().
			Int("tx_ops", txCount).
			Int("log_ops", logCount).
			Int("reindexed", reindexCount).
			Int("expired", expired).
			Msg("tick cycle applied work")
	}

	return nil
}

// drainPendingTxOps processes queued user storage transactions in order,
// each inside its own database transaction so a partial failure rolls back
// only that transaction's effects.
func (e *Engine) drainPendingTxOps(ctx context.Context, logger zerolog.Logger) (int, error) {
	items, err := e.repo.ListPendingTxOps(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, item := range items {
		if err := e.processPendingTxOp(ctx, item); err != nil {
			if errors.Is(err, indexererr.ErrMalformedInput) {
				logger.Warn().Err(err).Str("tx_hash", item.TransactionHash.Hex()).Msg("dropping malformed pending tx")
				metrics.TxDecodeFailuresTotal.Inc()
				if dropErr := e.dropPendingTxOp(ctx, item); dropErr != nil {
					return processed, dropErr
				}
				continue
			}
			return processed, fmt.Errorf("process pending tx %s: %w", item.TransactionHash.Hex(), err)
		}
		processed++
	}
	return processed, nil
}

func (e *Engine) processPendingTxOp(ctx context.Context, item types.PendingTxOp) error {
	confirmed, err := e.repo.GetConfirmedTx(ctx, item.TransactionHash)
	if err != nil {
		return fmt.Errorf("%w: load confirmed tx: %v", indexererr.ErrTransientIO, err)
	}

	return e.repo.WithTx(ctx, func(tx *repository.Tx) error {
		nextOpIndex, err := e.nextOpIndexFor(ctx, tx)
		if err != nil {
			return err
		}

		ops, err := classifier.ClassifyStorageTx(confirmed, nextOpIndex)
		if err != nil {
			return err
		}

		if err := e.applyOps(ctx, tx, ops); err != nil {
			return err
		}

		return tx.DeletePendingTxOp(ctx, item.TransactionHash)
	})
}

// dropPendingTxOp removes a malformed item from the queue on its own,
// outside the failed classification transaction.
func (e *Engine) dropPendingTxOp(ctx context.Context, item types.PendingTxOp) error {
	return e.repo.WithTx(ctx, func(tx *repository.Tx) error {
		return tx.DeletePendingTxOp(ctx, item.TransactionHash)
	})
}

// drainPendingLogOps processes queued housekeeping-transaction logs, one
// source transaction at a time.
func (e *Engine) drainPendingLogOps(ctx context.Context, logger zerolog.Logger) (int, error) {
	items, err := e.repo.ListPendingLogOps(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	// Housekeeping logs from the same transaction are processed together:
	// group by transaction hash so the classifier sees the full log set.
	byTx := make(map[string][]types.PendingLogOp)
	order := make([]string, 0)
	for _, item := range items {
		key := item.TransactionHash.Hex()
		if _, ok := byTx[key]; !ok {
			order = append(order, key)
		}
		byTx[key] = append(byTx[key], item)
	}

	processed := 0
	for _, key := range order {
		group := byTx[key]
		if err := e.processPendingLogGroup(ctx, group); err != nil {
			if errors.Is(err, indexererr.ErrMalformedInput) {
				logger.Warn().Err(err).Str("tx_hash", key).Msg("dropping malformed pending log group")
				if dropErr := e.dropPendingLogGroup(ctx, group); dropErr != nil {
					return processed, dropErr
				}
				continue
			}
			return processed, fmt.Errorf("process pending log group %s: %w", key, err)
		}
		processed += len(group)
	}
	return processed, nil
}

func (e *Engine) processPendingLogGroup(ctx context.Context, group []types.PendingLogOp) error {
	txHash := group[0].TransactionHash
	confirmed, err := e.repo.GetConfirmedTx(ctx, txHash)
	if err != nil {
		return fmt.Errorf("%w: load confirmed tx: %v", indexererr.ErrTransientIO, err)
	}

	return e.repo.WithTx(ctx, func(tx *repository.Tx) error {
		nextOpIndex, err := e.nextOpIndexFor(ctx, tx)
		if err != nil {
			return err
		}

		ops, err := classifier.ClassifyHousekeepingLogs(confirmed, nextOpIndex)
		if err != nil {
			return err
		}

		if err := e.applyOps(ctx, tx, ops); err != nil {
			return err
		}

		for _, item := range group {
			if err := tx.DeletePendingLogOp(ctx, item.TransactionHash, item.LogIndex); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) dropPendingLogGroup(ctx context.Context, group []types.PendingLogOp) error {
	return e.repo.WithTx(ctx, func(tx *repository.Tx) error {
		for _, item := range group {
			if err := tx.DeletePendingLogOp(ctx, item.TransactionHash, item.LogIndex); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyOps folds each operation through the state machine and persists the
// result, skipping (but logging and counting) operations that fail a state
// precondition rather than aborting the whole transaction: a state
// violation queues the entity for reindex instead of halting the pipeline.
func (e *Engine) applyOps(ctx context.Context, tx *repository.Tx, ops []types.Operation) error {
	for _, op := range ops {
		current, err := tx.GetEntity(ctx, op.EntityKey)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if errors.Is(err, repository.ErrNotFound) {
			current = nil
		}

		result, err := statemachine.Apply(current, op)
		if err != nil {
			if errors.Is(err, indexererr.ErrStateViolation) {
				metrics.OperationsSkippedTotal.WithLabelValues(string(op.Kind)).Inc()
				if enqueueErr := tx.EnqueueReindex(ctx, op.EntityKey); enqueueErr != nil {
					return enqueueErr
				}
				continue
			}
			return err
		}

		if err := tx.PutEntity(ctx, &result.Entity); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &result.History); err != nil {
			return err
		}
		if result.ReplaceAnnotations {
			if err := tx.ReplaceStringAnnotations(ctx, op.EntityKey, op.OpIndex, result.StringAnnotations); err != nil {
				return err
			}
			if err := tx.ReplaceNumericAnnotations(ctx, op.EntityKey, op.OpIndex, result.NumericAnnotations); err != nil {
				return err
			}
		}

		usageDelta := storageUsageDelta(op, current)
		if err := tx.MarkBlockDirty(ctx, op.BlockNumber, usageDelta); err != nil {
			return err
		}

		metrics.OperationsProcessedTotal.WithLabelValues(string(op.Kind)).Inc()
	}
	return nil
}

// storageUsageDelta approximates the change in stored byte size an
// operation causes, for the block_stats aggregate; a delete frees the
// entity's prior payload and a create/update charges the new one.
func storageUsageDelta(op types.Operation, current *types.Entity) int64 {
	switch op.Kind {
	case types.OperationCreate, types.OperationUpdate:
		delta := int64(len(op.Data))
		if current != nil {
			delta -= int64(len(current.Data))
		}
		return delta
	case types.OperationDelete:
		if current != nil {
			return -int64(len(current.Data))
		}
		return 0
	default:
		return 0
	}
}

// nextOpIndexFor returns the op_index to assign the first operation of a
// new source transaction: one past the highest op_index recorded anywhere
// in entity_history, or zero if it is empty. op_index is monotonic across
// the whole table, not scoped to a block, so this stays correct across
// separate WithTx calls regardless of which block they touch.
func (e *Engine) nextOpIndexFor(ctx context.Context, tx *repository.Tx) (int64, error) {
	next, err := tx.NextOpIndex(ctx)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// drainReindexQueue reprocesses every entity queued for reindex by
// replaying its full history.
func (e *Engine) drainReindexQueue(ctx context.Context, logger zerolog.Logger) (int, error) {
	reindexed := 0
	for {
		var keys []types.EntityKey
		err := e.repo.WithTx(ctx, func(tx *repository.Tx) error {
			var err error
			keys, err = tx.DequeueReindexBatch(ctx, 100)
			return err
		})
		if err != nil {
			return reindexed, err
		}
		if len(keys) == 0 {
			return reindexed, nil
		}

		for _, key := range keys {
			if err := e.ReindexEntity(ctx, key); err != nil {
				return reindexed, fmt.Errorf("reindex entity %s: %w", key.Hex(), err)
			}
			reindexed++
		}
		logger.Debug().Int("count", len(keys)).Msg("reindexed entities")
	}
}

// ReindexEntity wipes an entity's derived state and replays its full
// history through the state machine. The result must be byte-identical to
// what steady-state processing would have produced.
func (e *Engine) ReindexEntity(ctx context.Context, key types.EntityKey) error {
	return e.repo.WithTx(ctx, func(tx *repository.Tx) error {
		history, err := tx.ListHistory(ctx, key)
		if err != nil {
			return err
		}

		if err := tx.DeleteEntity(ctx, key); err != nil {
			return err
		}

		var current *types.Entity
		var lastStrings []types.StringAnnotation
		var lastNumerics []types.NumericAnnotation

		for _, h := range history {
			op := operationFromHistory(h)
			result, err := statemachine.Apply(current, op)
			if err != nil {
				if errors.Is(err, indexererr.ErrStateViolation) {
					continue
				}
				return err
			}
			current = &result.Entity
			if result.ReplaceAnnotations {
				lastStrings = result.StringAnnotations
				lastNumerics = result.NumericAnnotations
			}
		}

		if current == nil {
			return nil
		}

		if err := tx.PutEntity(ctx, current); err != nil {
			return err
		}
		if err := tx.ReplaceStringAnnotations(ctx, key, current.UpdatedAtOpIndex, lastStrings); err != nil {
			return err
		}
		return tx.ReplaceNumericAnnotations(ctx, key, current.UpdatedAtOpIndex, lastNumerics)
	})
}

// operationFromHistory reconstructs the Operation a history row recorded,
// enough to re-drive the state machine deterministically.
func operationFromHistory(h types.EntityHistory) types.Operation {
	return types.Operation{
		OpIndex:              h.OpIndex,
		Kind:                 h.Operation,
		EntityKey:            h.EntityKey,
		Sender:               h.Sender,
		Owner:                h.Owner,
		BlockNumber:          h.BlockNumber,
		BlockHash:            h.BlockHash,
		TransactionHash:      h.TransactionHash,
		TxIndex:              h.TxIndex,
		BlockTimestamp:       h.BlockTimestamp,
		ContentType:          h.ContentType,
		Data:                 h.Data,
		BTL:                  h.BTL,
		ExpiresAtBlockNumber: h.ExpiresAtBlockNumber,
		TotalCost:            h.TotalCost,
	}
}

// advanceScheduler runs the expiration scan for every block between the
// scheduler's last high-water mark and the highest confirmed block,
// inclusive, each within its own transaction. It runs after the pending
// queues have drained, and each expiration's op_index follows every
// op_index already recorded, so it is not placed between block B's and
// block B+1's other operations.
func (e *Engine) advanceScheduler(ctx context.Context, logger zerolog.Logger) (int, error) {
	maxBlock, err := e.repo.MaxConfirmedBlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	lastScheduled, err := e.repo.LastScheduledBlock(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for b := lastScheduled + 1; b <= maxBlock; b++ {
		err := e.repo.WithTx(ctx, func(tx *repository.Tx) error {
			nextOpIndex, err := e.nextOpIndexFor(ctx, tx)
			if err != nil {
				return err
			}

			ops, err := e.sched.ExpireBlock(ctx, tx, b, nextOpIndex)
			if err != nil {
				return err
			}
			if err := e.applyOps(ctx, tx, ops); err != nil {
				return err
			}
			expired += len(ops)

			return tx.SetLastScheduledBlock(ctx, b)
		})
		if err != nil {
			return expired, fmt.Errorf("advance scheduler to block %d: %w", b, err)
		}
	}

	return expired, nil
}

