package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/batchfetch/internal/infra/storage"
)

// Pruner deletes stored batches based on a retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.OutcomeRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.OutcomeRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every tenth of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes batches that finished before now minus the retention period.
func (p *Pruner) Prune(ctx context.Context) int {
	threshold := p.now().Add(-p.retention)

	n, err := p.repo.DeleteBatchesOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune batches", "threshold", threshold, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned old batches", "count", n, "threshold", threshold)
	}
	return n
}
