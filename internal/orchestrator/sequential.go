package orchestrator

import (
	"context"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// runSequential runs one task at a time in input order.
// A failure is recorded and the next task still runs.
func (o *Orchestrator) runSequential(ctx context.Context, b *batch) {
	for i, h := range b.handles {
		var out domain.Outcome
		if err := ctx.Err(); err != nil {
			out = b.synthesize(i, domain.ErrNotAttempted, err, 0)
		} else {
			out = b.runner.Run(ctx, i, h)
		}
		b.record(out)
		b.notify(out)
	}
	b.finish(false)
}
