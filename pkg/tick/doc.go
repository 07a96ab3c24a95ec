/*
Package tick implements the indexer's driving loop.

# Cycle

Each call to Tick runs one full pass:

 1. Drain pending_tx_ops in (block_number, tx_index) order: for each item,
    load the transaction and its logs, classify it into operations and
    apply them to entity state, all inside one database transaction. The
    queue row is deleted only once that transaction commits.
 2. Drain pending_log_ops the same way, grouped by transaction hash so a
    housekeeping transaction's logs classify together.
 3. Drain entities_to_reindex: wipe and replay each entity's full history.
 4. Advance the expiration scheduler for every block between its last
    high-water mark and the highest confirmed block, applying the
    synthetic deletes it returns within that block's own transaction.
 5. Each applied operation flags its block dirty in block_stats along the
    way; clearing that flag is the job of the aggregate-view refresher,
    an out-of-scope external collaborator, not this cycle.

A cycle with nothing queued returns immediately; Tick is safe to call
repeatedly or on a fixed interval via Start/Stop.

# Usage

	engine := tick.New(repo)
	engine.Start(ctx, 2*time.Second)
	defer engine.Stop()

	// or drive a single cycle directly, e.g. from a CLI subcommand:
	if err := engine.Tick(ctx); err != nil {
		log.Fatal(err.Error())
	}
*/
package tick
