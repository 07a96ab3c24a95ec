// Package indexererr defines the sentinel error kinds used to classify
// failures across the indexing pipeline. Call sites wrap an underlying
// cause with one of these via fmt.Errorf("...: %w", ...) and callers use
// errors.Is to decide how to react.
package indexererr

import "errors"

var (
	// ErrTransientIO marks a failure talking to the database or reading
	// chain-ingestor tables that is expected to clear on retry. The
	// supervisor sleeps restart_delay and restarts the tick loop.
	ErrTransientIO = errors.New("transient I/O error")

	// ErrMalformedInput marks an undecodable storage transaction or an
	// unrecognized event topic. The offending tx is dropped from its
	// pending queue; no history row is written.
	ErrMalformedInput = errors.New("malformed input")

	// ErrStateViolation marks an operation attempted against an entity in
	// a state that does not admit it (duplicate create, update on an
	// absent entity, and so on). The operation is skipped and the entity
	// is queued for reindex.
	ErrStateViolation = errors.New("state violation")

	// ErrFatal marks a condition the supervisor must not retry past, such
	// as a schema mismatch or a missing migration.
	ErrFatal = errors.New("fatal error")
)
