/*
Package scheduler applies the block-height-driven entity expiration the
indexer performs alongside ordinary storage-transaction processing.

# Architecture

Unlike a wall-clock scheduler, this one has no ticker of its own: once a
tick has drained the pending queues, the tick engine calls ExpireBlock once
per newly advanced block, each block in a database transaction of its own.

	┌──────────────────────────────────────────────────────────┐
	│                  pkg/tick, one cycle                      │
	│  1. Apply queued user storage-tx operations               │
	│  2. Apply queued housekeeping-log operations               │
	│  3. For each newly advanced block B, in its own tx:        │
	│     scheduler.ExpireBlock(tx, B, nextOpIndex)              │
	│     → scan entities WHERE status=active AND                │
	│       expires_at_block_number = B                          │
	│     → already-deleted-by-log entities are skipped,         │
	│       since their status is no longer active                │
	│     then apply the returned system-delete operations       │
	└──────────────────────────────────────────────────────────┘

Because the scan happens after step 2, an entity whose housekeeping log was
already applied is no longer active and is not double-deleted. A
housekeeping log that is drained only in a later tick is not matched
against an expiration the scheduler already applied. nextOpIndex is one
past the highest op_index recorded so far, so the expirations of block B
follow every operation already applied, including those of later blocks.

# Usage

	sched := scheduler.New()
	err := repo.WithTx(ctx, func(tx *repository.Tx) error {
		ops, err := sched.ExpireBlock(ctx, tx, blockNumber, nextOpIndex)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if _, err := statemachine.Apply(current, op); err != nil {
				return err
			}
		}
		return nil
	})
*/
package scheduler
