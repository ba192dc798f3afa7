package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

var (
	// ErrBatchNotFound is returned when a batch doesn't exist
	ErrBatchNotFound = errors.New("batch not found")
)

// OutcomeRepository persists finished batches and their outcomes.
type OutcomeRepository interface {
	// SaveBatch stores a batch and all of its outcomes atomically
	SaveBatch(ctx context.Context, result *domain.BatchResult) error

	// GetBatch retrieves a batch summary by ID
	GetBatch(ctx context.Context, id string) (*BatchRecord, error)

	// ListBatches returns the most recent batches, newest first
	ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error)

	// GetOutcomes returns the outcomes of a batch ordered by index.
	// A nil or empty indexes slice selects every outcome.
	GetOutcomes(ctx context.Context, batchID string, indexes []int) ([]*OutcomeRecord, error)

	// DeleteBatchesOlderThan removes batches that finished before the threshold
	DeleteBatchesOlderThan(ctx context.Context, threshold time.Time) (int, error)
}
