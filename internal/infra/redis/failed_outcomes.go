package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// FailedOutcomeTTL bounds how long failures of a batch are kept.
const FailedOutcomeTTL = 24 * time.Hour

// FailedOutcome is the queued record of a handle that did not succeed.
type FailedOutcome struct {
	BatchID  string    `json:"batch_id"`
	Index    int       `json:"index"`
	HandleID string    `json:"handle_id"`
	Error    string    `json:"error"`
	Aborted  bool      `json:"aborted"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// FailedOutcomeRepo keeps failed outcomes per batch in a sorted set scored by index.
type FailedOutcomeRepo struct {
	c   *Client
	now func() time.Time
}

// NewFailedOutcomeRepo creates a new Redis-backed failed outcome repository.
func NewFailedOutcomeRepo(client *Client) *FailedOutcomeRepo {
	return &FailedOutcomeRepo{c: client, now: time.Now}
}

// Add queues a failed outcome. Successful outcomes are ignored.
func (r *FailedOutcomeRepo) Add(ctx context.Context, batchID string, o domain.Outcome) error {
	if o.Succeeded() {
		return nil
	}

	now := r.now()
	data, err := json.Marshal(FailedOutcome{
		BatchID:  batchID,
		Index:    o.Index,
		HandleID: o.HandleID,
		Error:    o.Err.Error(),
		Aborted:  o.Aborted(),
		Attempts: o.Attempts,
		FailedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failed outcome: %w", err)
	}

	key := r.c.failedKey(batchID)
	pipe := r.c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(o.Index), Member: data})
	pipe.Expire(ctx, key, FailedOutcomeTTL)
	pipe.ZAdd(ctx, r.c.batchesKey(), redis.Z{Score: float64(now.Unix()), Member: batchID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add failed outcome: %w", err)
	}
	return nil
}

// List returns the failed outcomes of a batch ordered by index.
func (r *FailedOutcomeRepo) List(ctx context.Context, batchID string) ([]FailedOutcome, error) {
	members, err := r.c.rdb.ZRange(ctx, r.c.failedKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	out := make([]FailedOutcome, 0, len(members))
	for _, m := range members {
		var fo FailedOutcome
		if err := json.Unmarshal([]byte(m), &fo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed outcome: %w", err)
		}
		out = append(out, fo)
	}
	return out, nil
}

// Count returns the number of failed outcomes of a batch.
func (r *FailedOutcomeRepo) Count(ctx context.Context, batchID string) (int, error) {
	n, err := r.c.rdb.ZCard(ctx, r.c.failedKey(batchID)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}

// Clear removes every failed outcome of a batch.
func (r *FailedOutcomeRepo) Clear(ctx context.Context, batchID string) error {
	pipe := r.c.rdb.TxPipeline()
	pipe.Del(ctx, r.c.failedKey(batchID))
	pipe.ZRem(ctx, r.c.batchesKey(), batchID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear failed outcomes: %w", err)
	}
	return nil
}

// Batches returns IDs of batches with recorded failures, most recent first.
func (r *FailedOutcomeRepo) Batches(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.c.rdb.ZRevRange(ctx, r.c.batchesKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return ids, nil
}
