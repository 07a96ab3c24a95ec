// Package repository persists the entity indexer's relational state in
// Postgres: entities, their history, annotations, and the pending-work
// queues the tick engine drains. Uses plain database/sql with hand-written
// queries rather than an ORM or query builder.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golembase/indexer/pkg/classifier"
	"github.com/golembase/indexer/pkg/types"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("repository: not found")

// Config holds the Postgres connection parameters.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the libpq connection string pgx's stdlib driver expects.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, sslMode)
}

// Repository is the Postgres-backed store for indexer state.
type Repository struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// OpenDSN connects using a raw libpq connection string, for callers (tests,
// CLI flags) that already hold a DSN rather than discrete Config fields.
func OpenDSN(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Tx wraps a database/sql transaction with the same method set as
// Repository, scoped to a single atomic unit of work.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a database transaction, committing on success and
// rolling back on error or panic. Each source transaction's classified
// operations are applied within exactly one call to WithTx.
func (r *Repository) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		err = sqlTx.Commit()
	}()

	return fn(&Tx{tx: sqlTx})
}

// GetEntity loads the current materialized state of an entity.
func (r *Repository) GetEntity(ctx context.Context, key types.EntityKey) (*types.Entity, error) {
	return getEntity(ctx, r.db, key)
}

// GetEntity loads an entity within a transaction, for read-your-writes
// against rows the same transaction has already modified.
func (t *Tx) GetEntity(ctx context.Context, key types.EntityKey) (*types.Entity, error) {
	return getEntity(ctx, t.tx, key)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getEntity(ctx context.Context, q querier, key types.EntityKey) (*types.Entity, error) {
	row := q.QueryRowContext(ctx, `
		SELECT key, owner, creator, data, content_type, status, expires_at_block_number,
		       created_at_tx_hash, created_at_op_index, created_at_block, created_at_timestamp,
		       updated_at_tx_hash, updated_at_op_index, updated_at_block, updated_at_timestamp,
		       cost
		FROM entities WHERE key = $1`, key.Hex())

	var (
		keyHex, creatorHex          string
		ownerHex                    sql.NullString
		createdTxHex, updatedTxHex  string
		costStr                     string
		e                           types.Entity
	)

	if err := row.Scan(
		&keyHex, &ownerHex, &creatorHex, &e.Data, &e.ContentType, &e.Status, &e.ExpiresAtBlockNumber,
		&createdTxHex, &e.CreatedAtOpIndex, &e.CreatedAtBlock, &e.CreatedAtTimestamp,
		&updatedTxHex, &e.UpdatedAtOpIndex, &e.UpdatedAtBlock, &e.UpdatedAtTimestamp,
		&costStr,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}

	e.Key = common.HexToHash(keyHex)
	e.Creator = common.HexToAddress(creatorHex)
	e.CreatedAtTxHash = common.HexToHash(createdTxHex)
	e.UpdatedAtTxHash = common.HexToHash(updatedTxHex)
	if ownerHex.Valid {
		addr := common.HexToAddress(ownerHex.String)
		e.Owner = &addr
	}
	e.Cost = new(big.Int)
	if costStr != "" {
		e.Cost.SetString(costStr, 10)
	}

	return &e, nil
}

// PutEntity inserts or replaces an entity's materialized row.
func (t *Tx) PutEntity(ctx context.Context, e *types.Entity) error {
	var ownerHex any
	if e.Owner != nil {
		ownerHex = e.Owner.Hex()
	}

	cost := "0"
	if e.Cost != nil {
		cost = e.Cost.String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities (
			key, owner, creator, data, content_type, status, expires_at_block_number,
			created_at_tx_hash, created_at_op_index, created_at_block, created_at_timestamp,
			updated_at_tx_hash, updated_at_op_index, updated_at_block, updated_at_timestamp, cost
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (key) DO UPDATE SET
			owner = EXCLUDED.owner,
			creator = EXCLUDED.creator,
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			status = EXCLUDED.status,
			expires_at_block_number = EXCLUDED.expires_at_block_number,
			updated_at_tx_hash = EXCLUDED.updated_at_tx_hash,
			updated_at_op_index = EXCLUDED.updated_at_op_index,
			updated_at_block = EXCLUDED.updated_at_block,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp,
			cost = EXCLUDED.cost`,
		e.Key.Hex(), ownerHex, e.Creator.Hex(), e.Data, e.ContentType, e.Status, e.ExpiresAtBlockNumber,
		e.CreatedAtTxHash.Hex(), e.CreatedAtOpIndex, e.CreatedAtBlock, e.CreatedAtTimestamp,
		e.UpdatedAtTxHash.Hex(), e.UpdatedAtOpIndex, e.UpdatedAtBlock, e.UpdatedAtTimestamp, cost,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// AppendHistory writes one append-only entity_history row.
func (t *Tx) AppendHistory(ctx context.Context, h *types.EntityHistory) error {
	var btl any
	if h.BTL != nil {
		btl = *h.BTL
	}
	totalCost := "0"
	if h.TotalCost != nil {
		totalCost = h.TotalCost.String()
	}

	var ownerHex any
	if h.Owner != nil {
		ownerHex = h.Owner.Hex()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entity_history (
			entity_key, op_index, operation, sender, owner,
			block_number, block_hash, transaction_hash, tx_index, block_timestamp,
			btl, data, prev_data, status, prev_status, content_type, prev_content_type,
			expires_at_block_number, prev_expires_at_block_number, total_cost
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		h.EntityKey.Hex(), h.OpIndex, h.Operation, h.Sender.Hex(), ownerHex,
		h.BlockNumber, h.BlockHash.Hex(), h.TransactionHash.Hex(), h.TxIndex, h.BlockTimestamp,
		btl, h.Data, h.PrevData, h.Status, h.PrevStatus, h.ContentType, h.PrevContentType,
		h.ExpiresAtBlockNumber, h.PrevExpiresAtBlockNumber, totalCost,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ReplaceStringAnnotations deactivates all of an entity's active string
// annotations, whatever their keys, and inserts the new set as active.
func (t *Tx) ReplaceStringAnnotations(ctx context.Context, key types.EntityKey, opIndex int64, annotations []types.StringAnnotation) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE string_annotations SET active = false WHERE entity_key = $1 AND active = true`,
		key.Hex()); err != nil {
		return fmt.Errorf("deactivate string annotations: %w", err)
	}

	for _, a := range annotations {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO string_annotations (entity_key, op_index, key, value, active)
			VALUES ($1,$2,$3,$4,true)`,
			key.Hex(), opIndex, a.Key, a.Value); err != nil {
			return fmt.Errorf("insert string annotation %q: %w", a.Key, err)
		}
	}
	return nil
}

// ReplaceNumericAnnotations mirrors ReplaceStringAnnotations for numeric
// annotations.
func (t *Tx) ReplaceNumericAnnotations(ctx context.Context, key types.EntityKey, opIndex int64, annotations []types.NumericAnnotation) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE numeric_annotations SET active = false WHERE entity_key = $1 AND active = true`,
		key.Hex()); err != nil {
		return fmt.Errorf("deactivate numeric annotations: %w", err)
	}

	for _, a := range annotations {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO numeric_annotations (entity_key, op_index, key, value, active)
			VALUES ($1,$2,$3,$4,true)`,
			key.Hex(), opIndex, a.Key, a.Value); err != nil {
			return fmt.Errorf("insert numeric annotation %q: %w", a.Key, err)
		}
	}
	return nil
}

// NextOpIndex returns one past the highest op_index recorded anywhere in
// entity_history, or zero if the table is empty. op_index is monotonic
// across the whole table, not scoped to a block or entity, so every new
// source transaction's operations must seed from this global value.
func (t *Tx) NextOpIndex(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `SELECT max(op_index) FROM entity_history`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max op_index: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 + 1, nil
}

// ListHistory returns an entity's full append-only history ordered by
// op_index, for replaying an entity's full operation sequence during a
// reindex.
func (t *Tx) ListHistory(ctx context.Context, key types.EntityKey) ([]types.EntityHistory, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT op_index, operation, sender, owner, block_number, block_hash, transaction_hash, tx_index,
		       block_timestamp, btl, data, status, content_type, expires_at_block_number, total_cost
		FROM entity_history WHERE entity_key = $1 ORDER BY op_index ASC`, key.Hex())
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", key.Hex(), err)
	}
	defer rows.Close()

	var out []types.EntityHistory
	for rows.Next() {
		var (
			h                       types.EntityHistory
			senderHex, blockHashHex string
			txHashHex               string
			ownerHex                sql.NullString
			btl                     sql.NullInt64
			totalCostStr            string
		)
		if err := rows.Scan(
			&h.OpIndex, &h.Operation, &senderHex, &ownerHex, &h.BlockNumber, &blockHashHex, &txHashHex, &h.TxIndex,
			&h.BlockTimestamp, &btl, &h.Data, &h.Status, &h.ContentType, &h.ExpiresAtBlockNumber, &totalCostStr,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		h.EntityKey = key
		h.Sender = common.HexToAddress(senderHex)
		h.BlockHash = common.HexToHash(blockHashHex)
		h.TransactionHash = common.HexToHash(txHashHex)
		if ownerHex.Valid {
			addr := common.HexToAddress(ownerHex.String)
			h.Owner = &addr
		}
		if btl.Valid {
			v := uint64(btl.Int64)
			h.BTL = &v
		}
		h.TotalCost = new(big.Int)
		if totalCostStr != "" {
			h.TotalCost.SetString(totalCostStr, 10)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteEntity removes an entity's materialized row, the first step of a
// reindex before replaying its history from scratch.
func (t *Tx) DeleteEntity(ctx context.Context, key types.EntityKey) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM entities WHERE key = $1`, key.Hex())
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", key.Hex(), err)
	}
	return nil
}

// EnqueuePendingTxOp records a confirmed transaction awaiting classification.
func (t *Tx) EnqueuePendingTxOp(ctx context.Context, op types.PendingTxOp) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pending_tx_ops (block_hash, block_number, transaction_hash, tx_index)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (transaction_hash) DO NOTHING`,
		op.BlockHash.Hex(), op.BlockNumber, op.TransactionHash.Hex(), op.TxIndex)
	if err != nil {
		return fmt.Errorf("enqueue pending tx op: %w", err)
	}
	return nil
}

// EnqueuePendingLogOp records a housekeeping-transaction log awaiting
// reconciliation.
func (t *Tx) EnqueuePendingLogOp(ctx context.Context, op types.PendingLogOp) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pending_log_ops (block_hash, block_number, transaction_hash, log_index)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (transaction_hash, log_index) DO NOTHING`,
		op.BlockHash.Hex(), op.BlockNumber, op.TransactionHash.Hex(), op.LogIndex)
	if err != nil {
		return fmt.Errorf("enqueue pending log op: %w", err)
	}
	return nil
}

// ListPendingTxOps returns up to limit queued transaction ops ordered by
// (block_number, tx_index), without removing them. The tick engine deletes
// each row only after that item's own transaction-scoped processing
// succeeds, so a crash mid-batch leaves the item queued for retry.
func (r *Repository) ListPendingTxOps(ctx context.Context, limit int) ([]types.PendingTxOp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT block_hash, block_number, transaction_hash, tx_index FROM pending_tx_ops
		ORDER BY block_number ASC, tx_index ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tx ops: %w", err)
	}
	defer rows.Close()

	var ops []types.PendingTxOp
	for rows.Next() {
		var blockHashHex, txHashHex string
		var op types.PendingTxOp
		if err := rows.Scan(&blockHashHex, &op.BlockNumber, &txHashHex, &op.TxIndex); err != nil {
			return nil, fmt.Errorf("scan pending tx op: %w", err)
		}
		op.BlockHash = common.HexToHash(blockHashHex)
		op.TransactionHash = common.HexToHash(txHashHex)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeletePendingTxOp removes one processed item from the pending-tx queue,
// called within the same transaction that applied its operations.
func (t *Tx) DeletePendingTxOp(ctx context.Context, txHash common.Hash) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM pending_tx_ops WHERE transaction_hash = $1`, txHash.Hex())
	if err != nil {
		return fmt.Errorf("delete pending tx op: %w", err)
	}
	return nil
}

// ListPendingLogOps mirrors ListPendingTxOps, ordered by
// (block_number, log_index).
func (r *Repository) ListPendingLogOps(ctx context.Context, limit int) ([]types.PendingLogOp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT block_hash, block_number, transaction_hash, log_index FROM pending_log_ops
		ORDER BY block_number ASC, log_index ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending log ops: %w", err)
	}
	defer rows.Close()

	var ops []types.PendingLogOp
	for rows.Next() {
		var blockHashHex, txHashHex string
		var op types.PendingLogOp
		if err := rows.Scan(&blockHashHex, &op.BlockNumber, &txHashHex, &op.LogIndex); err != nil {
			return nil, fmt.Errorf("scan pending log op: %w", err)
		}
		op.BlockHash = common.HexToHash(blockHashHex)
		op.TransactionHash = common.HexToHash(txHashHex)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeletePendingLogOp removes one processed item from the pending-log queue.
func (t *Tx) DeletePendingLogOp(ctx context.Context, txHash common.Hash, logIndex uint64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM pending_log_ops WHERE transaction_hash = $1 AND log_index = $2`,
		txHash.Hex(), logIndex)
	if err != nil {
		return fmt.Errorf("delete pending log op: %w", err)
	}
	return nil
}

// EnqueueReindex marks an entity for out-of-band reindexing, deduplicating
// against entries already queued.
func (t *Tx) EnqueueReindex(ctx context.Context, key types.EntityKey) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities_to_reindex (entity_key) VALUES ($1)
		ON CONFLICT (entity_key) DO NOTHING`, key.Hex())
	if err != nil {
		return fmt.Errorf("enqueue reindex: %w", err)
	}
	return nil
}

// DequeueReindexBatch returns up to limit entity keys queued for reindex
// and removes them from the queue.
func (t *Tx) DequeueReindexBatch(ctx context.Context, limit int) ([]types.EntityKey, error) {
	rows, err := t.tx.QueryContext(ctx, `
		DELETE FROM entities_to_reindex
		WHERE ctid IN (
			SELECT ctid FROM entities_to_reindex ORDER BY entity_key LIMIT $1
		)
		RETURNING entity_key`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue reindex batch: %w", err)
	}
	defer rows.Close()

	var keys []types.EntityKey
	for rows.Next() {
		var keyHex string
		if err := rows.Scan(&keyHex); err != nil {
			return nil, fmt.Errorf("scan reindex key: %w", err)
		}
		keys = append(keys, common.HexToHash(keyHex))
	}
	return keys, rows.Err()
}

// MarkBlockDirty increments a block's storage usage delta and flags it
// dirty for aggregate maintenance.
func (t *Tx) MarkBlockDirty(ctx context.Context, blockNumber uint64, usageDelta int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO block_stats (block_number, storage_usage, is_dirty)
		VALUES ($1, $2, true)
		ON CONFLICT (block_number) DO UPDATE SET
			storage_usage = block_stats.storage_usage + EXCLUDED.storage_usage,
			is_dirty = true`,
		blockNumber, usageDelta)
	if err != nil {
		return fmt.Errorf("mark block dirty: %w", err)
	}
	return nil
}

// is_dirty is cleared only by the periodic aggregate-view refresher, a
// separate process outside this package; the tick engine sets the flag and
// never clears it.

// ActiveEntitiesExpiringAtBlock returns the keys of every entity still
// active whose expires_at_block_number equals blockNumber, for the
// expiration scheduler's per-block scan.
func (t *Tx) ActiveEntitiesExpiringAtBlock(ctx context.Context, blockNumber uint64) ([]types.EntityKey, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT key FROM entities
		WHERE status = $1 AND expires_at_block_number = $2
		ORDER BY key`, types.EntityStatusActive, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("query expiring entities: %w", err)
	}
	defer rows.Close()

	var keys []types.EntityKey
	for rows.Next() {
		var keyHex string
		if err := rows.Scan(&keyHex); err != nil {
			return nil, fmt.Errorf("scan expiring entity key: %w", err)
		}
		keys = append(keys, common.HexToHash(keyHex))
	}
	return keys, rows.Err()
}

// EntityCountsByStatus returns the number of entities per status, for the
// gauge updater.
func (r *Repository) EntityCountsByStatus(ctx context.Context) (map[types.EntityStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM entities GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count entities by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.EntityStatus]int64)
	for rows.Next() {
		var status types.EntityStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan entity status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// QueueDepths reports the current size of the pending_tx_ops,
// pending_log_ops and entities_to_reindex queues.
func (r *Repository) QueueDepths(ctx context.Context) (pendingTx, pendingLog, reindex int64, err error) {
	if err = r.db.QueryRowContext(ctx, `SELECT count(*) FROM pending_tx_ops`).Scan(&pendingTx); err != nil {
		return 0, 0, 0, fmt.Errorf("count pending tx ops: %w", err)
	}
	if err = r.db.QueryRowContext(ctx, `SELECT count(*) FROM pending_log_ops`).Scan(&pendingLog); err != nil {
		return 0, 0, 0, fmt.Errorf("count pending log ops: %w", err)
	}
	if err = r.db.QueryRowContext(ctx, `SELECT count(*) FROM entities_to_reindex`).Scan(&reindex); err != nil {
		return 0, 0, 0, fmt.Errorf("count reindex queue: %w", err)
	}
	return pendingTx, pendingLog, reindex, nil
}

// DirtyBlockCount returns the number of block_stats rows still flagged
// dirty.
func (r *Repository) DirtyBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM block_stats WHERE is_dirty = true`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dirty blocks: %w", err)
	}
	return count, nil
}

// GetConfirmedTx loads a transaction and its logs from the upstream
// chain-ingestor tables (transactions, blocks, logs), which this indexer
// reads but does not own or write. Logs are returned ordered by log index.
func (r *Repository) GetConfirmedTx(ctx context.Context, txHash common.Hash) (classifier.ConfirmedTx, error) {
	var (
		hashHex, blockHashHex, fromHex string
		toHex                          sql.NullString
		tx                             classifier.ConfirmedTx
		timestamp                      time.Time
	)

	row := r.db.QueryRowContext(ctx, `
		SELECT t.hash, t.block_hash, t.block_number, t.tx_index, t.from_address, t.to_address, t.input, b.timestamp
		FROM transactions t JOIN blocks b ON b.number = t.block_number
		WHERE t.hash = $1`, txHash.Hex())

	if err := row.Scan(&hashHex, &blockHashHex, &tx.BlockNumber, &tx.TxIndex, &fromHex, &toHex, &tx.Input, &timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classifier.ConfirmedTx{}, ErrNotFound
		}
		return classifier.ConfirmedTx{}, fmt.Errorf("scan confirmed tx: %w", err)
	}

	tx.Hash = common.HexToHash(hashHex)
	tx.BlockHash = common.HexToHash(blockHashHex)
	tx.From = common.HexToAddress(fromHex)
	tx.BlockTimestamp = timestamp
	if toHex.Valid {
		to := common.HexToAddress(toHex.String)
		tx.To = &to
	}

	logs, err := r.getConfirmedLogs(ctx, txHash)
	if err != nil {
		return classifier.ConfirmedTx{}, err
	}
	tx.Logs = logs

	return tx, nil
}

func (r *Repository) getConfirmedLogs(ctx context.Context, txHash common.Hash) ([]classifier.Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_index, topics, data FROM logs
		WHERE transaction_hash = $1
		ORDER BY log_index ASC`, txHash.Hex())
	if err != nil {
		return nil, fmt.Errorf("query logs for tx %s: %w", txHash.Hex(), err)
	}
	defer rows.Close()

	var logs []classifier.Log
	for rows.Next() {
		var l classifier.Log
		var topicsHex []string
		if err := rows.Scan(&l.Index, &topicsHex, &l.Data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		l.Topics = make([]common.Hash, len(topicsHex))
		for i, th := range topicsHex {
			l.Topics[i] = common.HexToHash(th)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// MaxConfirmedBlockNumber returns the highest block number present in the
// upstream ingestor's blocks table, the bound the expiration scheduler
// advances to on each tick.
func (r *Repository) MaxConfirmedBlockNumber(ctx context.Context) (uint64, error) {
	var n sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT max(number) FROM blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("query max confirmed block: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

// LastScheduledBlock returns the highest block number the expiration
// scheduler has already advanced past, persisted so a restarted tick
// engine resumes from where it left off instead of rescanning from zero.
func (r *Repository) LastScheduledBlock(ctx context.Context) (uint64, error) {
	var n sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT value FROM indexer_state WHERE key = 'last_scheduled_block'`).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query last scheduled block: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

// SetLastScheduledBlock persists the expiration scheduler's high-water
// mark within the same transaction as the block's operations.
func (t *Tx) SetLastScheduledBlock(ctx context.Context, blockNumber uint64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO indexer_state (key, value) VALUES ('last_scheduled_block', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, blockNumber)
	if err != nil {
		return fmt.Errorf("set last scheduled block: %w", err)
	}
	return nil
}
