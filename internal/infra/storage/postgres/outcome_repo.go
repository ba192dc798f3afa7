package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/infra/storage"
)

// OutcomeRepo implements storage.OutcomeRepository using PostgreSQL.
type OutcomeRepo struct {
	db *DB
}

// NewOutcomeRepo creates a new PostgreSQL outcome repository.
func NewOutcomeRepo(db *DB) *OutcomeRepo {
	return &OutcomeRepo{db: db}
}

// outcomeRow mirrors the outcomes table. JSONB is read back as text.
type outcomeRow struct {
	BatchID    string         `db:"batch_id"`
	Index      int            `db:"idx"`
	HandleID   string         `db:"handle_id"`
	Succeeded  bool           `db:"succeeded"`
	Value      sql.NullString `db:"value"`
	Error      string         `db:"error_msg"`
	Attempts   int            `db:"attempts"`
	DurationMs int64          `db:"duration_ms"`
}

func (r outcomeRow) record() *storage.OutcomeRecord {
	rec := &storage.OutcomeRecord{
		BatchID:    r.BatchID,
		Index:      r.Index,
		HandleID:   r.HandleID,
		Succeeded:  r.Succeeded,
		Error:      r.Error,
		Attempts:   r.Attempts,
		DurationMs: r.DurationMs,
	}
	if r.Value.Valid {
		rec.Value = json.RawMessage(r.Value.String)
	}
	return rec
}

// SaveBatch stores a batch and its outcomes in one transaction.
// Saving the same batch twice replaces the previous rows.
func (r *OutcomeRepo) SaveBatch(ctx context.Context, res *domain.BatchResult) error {
	batch := storage.NewBatchRecord(res)
	outcomes := storage.NewOutcomeRecords(res)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO batches (id, policy, state, status, total, succeeded, failed, started_at, finished_at)
		VALUES (:id, :policy, :state, :status, :total, :succeeded, :failed, :started_at, :finished_at)
		ON CONFLICT (id) DO UPDATE SET
			policy = EXCLUDED.policy,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`, batch)
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE batch_id = $1`, batch.ID); err != nil {
		return fmt.Errorf("failed to clear outcomes of %s: %w", batch.ID, err)
	}

	for _, o := range outcomes {
		var value any
		if o.Value != nil {
			value = string(o.Value)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (batch_id, idx, handle_id, succeeded, value, error_msg, attempts, duration_ms)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
		`, o.BatchID, o.Index, o.HandleID, o.Succeeded, value, o.Error, o.Attempts, o.DurationMs)
		if err != nil {
			return fmt.Errorf("failed to save outcome %d of %s: %w", o.Index, batch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch %s: %w", batch.ID, err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (r *OutcomeRepo) GetBatch(ctx context.Context, id string) (*storage.BatchRecord, error) {
	var rec storage.BatchRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT id, policy, state, status, total, succeeded, failed, started_at, finished_at
		FROM batches
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return &rec, nil
}

// ListBatches returns recent batches, newest first.
func (r *OutcomeRepo) ListBatches(ctx context.Context, limit int) ([]*storage.BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []*storage.BatchRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT id, policy, state, status, total, succeeded, failed, started_at, finished_at
		FROM batches
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return recs, nil
}

// GetOutcomes returns outcomes ordered by index, optionally filtered by index.
func (r *OutcomeRepo) GetOutcomes(ctx context.Context, batchID string, indexes []int) ([]*storage.OutcomeRecord, error) {
	if _, err := r.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}

	var rows []outcomeRow
	var err error
	if len(indexes) == 0 {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT batch_id, idx, handle_id, succeeded, value::text AS value, error_msg, attempts, duration_ms
			FROM outcomes
			WHERE batch_id = $1
			ORDER BY idx
		`, batchID)
	} else {
		filter := make([]int64, len(indexes))
		for i, idx := range indexes {
			filter[i] = int64(idx)
		}
		err = r.db.SelectContext(ctx, &rows, `
			SELECT batch_id, idx, handle_id, succeeded, value::text AS value, error_msg, attempts, duration_ms
			FROM outcomes
			WHERE batch_id = $1 AND idx = ANY($2::int[])
			ORDER BY idx
		`, batchID, pq.Array(filter))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes of %s: %w", batchID, err)
	}

	out := make([]*storage.OutcomeRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// DeleteBatchesOlderThan removes old batches. Outcomes cascade.
func (r *OutcomeRepo) DeleteBatchesOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE finished_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old batches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted batches: %w", err)
	}
	return int(n), nil
}
