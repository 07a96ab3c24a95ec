// Command golembase-indexer-migrate applies the indexer's schema to a
// Postgres database: a flag-driven, dry-run-capable tool that runs plain
// additive DDL against a live connection.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	dsn    = flag.String("db", "postgres://localhost:5432/golembase_indexer?sslmode=disable", "Postgres connection string")
	dryRun = flag.Bool("dry-run", false, "Print the statements that would run without executing them")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("golembase-indexer schema migration")
	log.Println("===================================")
	log.Printf("Database: %s", redactPassword(*dsn))
	log.Printf("Dry run: %v", *dryRun)

	if *dryRun {
		log.Println("\n[DRY RUN] Would execute the following statements:")
		for _, stmt := range statements {
			log.Println(stmt)
		}
		return
	}

	ctx := context.Background()
	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("statement %d/%d failed: %v\n%s", i+1, len(statements), err, stmt)
		}
		log.Printf("applied statement %d/%d", i+1, len(statements))
	}

	log.Println("\n✓ Migration completed successfully")
}

func redactPassword(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.LastIndex(dsn[:i], ":"); j >= 0 {
			return dsn[:j+1] + "***" + dsn[i:]
		}
	}
	return dsn
}

// statements is intentionally plain CREATE TABLE IF NOT EXISTS DDL rather
// than a numbered migration chain: the indexer has one schema and this
// tool's job is to make a fresh database match it.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		key TEXT PRIMARY KEY,
		owner TEXT,
		creator TEXT NOT NULL,
		data BYTEA,
		content_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		expires_at_block_number BIGINT NOT NULL,
		created_at_tx_hash TEXT NOT NULL,
		created_at_op_index BIGINT NOT NULL,
		created_at_block BIGINT NOT NULL,
		created_at_timestamp TIMESTAMPTZ NOT NULL,
		updated_at_tx_hash TEXT NOT NULL,
		updated_at_op_index BIGINT NOT NULL,
		updated_at_block BIGINT NOT NULL,
		updated_at_timestamp TIMESTAMPTZ NOT NULL,
		cost NUMERIC(78,0) NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS entities_status_idx ON entities (status)`,
	`CREATE INDEX IF NOT EXISTS entities_expires_at_idx ON entities (status, expires_at_block_number)`,
	`CREATE INDEX IF NOT EXISTS entities_owner_idx ON entities (owner)`,

	`CREATE TABLE IF NOT EXISTS entity_history (
		entity_key TEXT NOT NULL,
		op_index BIGINT NOT NULL,
		operation TEXT NOT NULL,
		sender TEXT NOT NULL,
		owner TEXT,
		block_number BIGINT NOT NULL,
		block_hash TEXT NOT NULL,
		transaction_hash TEXT NOT NULL,
		tx_index BIGINT NOT NULL,
		block_timestamp TIMESTAMPTZ NOT NULL,
		btl BIGINT,
		data BYTEA,
		prev_data BYTEA,
		status TEXT NOT NULL,
		prev_status TEXT,
		content_type TEXT NOT NULL DEFAULT '',
		prev_content_type TEXT,
		expires_at_block_number BIGINT NOT NULL,
		prev_expires_at_block_number BIGINT NOT NULL,
		total_cost NUMERIC(78,0) NOT NULL DEFAULT 0,
		PRIMARY KEY (entity_key, op_index)
	)`,
	`CREATE INDEX IF NOT EXISTS entity_history_block_idx ON entity_history (block_number)`,

	`CREATE TABLE IF NOT EXISTS string_annotations (
		entity_key TEXT NOT NULL,
		op_index BIGINT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE INDEX IF NOT EXISTS string_annotations_lookup_idx ON string_annotations (key, value) WHERE active`,
	`CREATE INDEX IF NOT EXISTS string_annotations_entity_idx ON string_annotations (entity_key) WHERE active`,

	`CREATE TABLE IF NOT EXISTS numeric_annotations (
		entity_key TEXT NOT NULL,
		op_index BIGINT NOT NULL,
		key TEXT NOT NULL,
		value BIGINT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE INDEX IF NOT EXISTS numeric_annotations_lookup_idx ON numeric_annotations (key, value) WHERE active`,
	`CREATE INDEX IF NOT EXISTS numeric_annotations_entity_idx ON numeric_annotations (entity_key) WHERE active`,

	`CREATE TABLE IF NOT EXISTS pending_tx_ops (
		block_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		transaction_hash TEXT NOT NULL UNIQUE,
		tx_index BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pending_tx_ops_order_idx ON pending_tx_ops (block_number, tx_index)`,

	`CREATE TABLE IF NOT EXISTS pending_log_ops (
		block_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		transaction_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		UNIQUE (transaction_hash, log_index)
	)`,
	`CREATE INDEX IF NOT EXISTS pending_log_ops_order_idx ON pending_log_ops (block_number, log_index)`,

	`CREATE TABLE IF NOT EXISTS entities_to_reindex (
		entity_key TEXT PRIMARY KEY
	)`,

	`CREATE TABLE IF NOT EXISTS block_stats (
		block_number BIGINT PRIMARY KEY,
		storage_usage BIGINT NOT NULL DEFAULT 0,
		is_dirty BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE INDEX IF NOT EXISTS block_stats_dirty_idx ON block_stats (block_number) WHERE is_dirty`,

	`CREATE TABLE IF NOT EXISTS indexer_state (
		key TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
}
