/*
Package log provides structured logging for the indexer using zerolog.

The log package wraps zerolog to give every component a JSON-structured
logger with configurable level and output, plus helpers that attach the
chain-data context (block number, transaction hash, entity key) a reader
needs to correlate an error with the row it came from.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component and context loggers:

	tickLog := log.WithComponent("tick")
	tickLog.Info().Msg("tick started")

	blockLog := log.WithBlock(12345)
	blockLog.Warn().Msg("housekeeping tx missing expected log")

	entityLog := log.WithEntity(key)
	entityLog.Error().Err(err).Msg("state machine rejected operation")

Every error surfaced per the error-handling design is logged with the
relevant (block, tx_hash, entity_key) attached as structured fields, never
interpolated into the message string, so log queries can filter on them.

# Log levels

Debug is for development and replay tracing, Info is the default
production level, Warn flags recoverable anomalies (stale updates,
dedup misses), Error marks a dropped operation or reindex, and Fatal is
reserved for schema mismatches the supervisor cannot restart past.
*/
package log
