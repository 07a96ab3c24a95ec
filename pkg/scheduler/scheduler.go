// Package scheduler applies block-height-driven entity expiration.
// Rather than maintaining a placement plan across cycles, every call
// re-derives the full set of entities due to expire straight from the
// current database state, triggered by block-height progression instead of
// a wall-clock ticker. The tick engine runs the scan for each block in a
// database transaction of its own, after the pending queues have drained,
// so it observes housekeeping-log deletes applied before it.
package scheduler

import (
	"context"
	"fmt"

	"github.com/golembase/indexer/pkg/eventabi"
	"github.com/golembase/indexer/pkg/log"
	"github.com/golembase/indexer/pkg/metrics"
	"github.com/golembase/indexer/pkg/repository"
	"github.com/golembase/indexer/pkg/types"
	"github.com/rs/zerolog"
)

// Scheduler computes the synthetic system-delete operations a block's
// expirations require. It holds no placement state between calls.
type Scheduler struct {
	logger zerolog.Logger
}

// New returns a Scheduler.
func New() *Scheduler {
	return &Scheduler{logger: log.WithComponent("scheduler")}
}

// ExpireBlock scans for entities still active whose expiration falls at
// blockNumber and returns one system-delete Operation per entity, with
// op_index assigned sequentially starting at nextOpIndex. Entities already
// deleted earlier in the same block by a housekeeping-log match are no
// longer active by the time this runs and are skipped automatically,
// deduplicating by (entity_key, block_number) without any separate
// bookkeeping.
func (s *Scheduler) ExpireBlock(ctx context.Context, tx *repository.Tx, blockNumber uint64, nextOpIndex int64) ([]types.Operation, error) {
	keys, err := tx.ActiveEntitiesExpiringAtBlock(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("scan expiring entities at block %d: %w", blockNumber, err)
	}

	ops := buildExpirationOps(keys, blockNumber, nextOpIndex)

	if len(ops) > 0 {
		s.logger.Debug().Uint64("block_number", blockNumber).Int("count", len(ops)).Msg("expiring entities")
		metrics.SchedulerExpirationsTotal.Add(float64(len(ops)))
	}

	return ops, nil
}

// buildExpirationOps turns a set of expiring entity keys into system-delete
// operations with sequential op_index, factored out of ExpireBlock so it
// can be exercised without a database.
func buildExpirationOps(keys []types.EntityKey, blockNumber uint64, nextOpIndex int64) []types.Operation {
	ops := make([]types.Operation, 0, len(keys))
	opIndex := nextOpIndex

	for _, key := range keys {
		ops = append(ops, types.Operation{
			OpIndex:     opIndex,
			Kind:        types.OperationDelete,
			EntityKey:   key,
			Sender:      eventabi.HousekeepingSender,
			Owner:       nil,
			BlockNumber: blockNumber,
		})
		opIndex++
	}

	return ops
}
