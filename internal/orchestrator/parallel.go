package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// runBestEffort starts every task and waits for all of them, regardless of failures.
func (o *Orchestrator) runBestEffort(ctx context.Context, b *batch) {
	var g errgroup.Group
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}

	for i, h := range b.handles {
		g.Go(func() error {
			var out domain.Outcome
			if err := ctx.Err(); err != nil {
				out = b.synthesize(i, domain.ErrNotAttempted, err, 0)
			} else {
				out = b.runner.Run(ctx, i, h)
			}
			b.record(out)
			b.notify(out)
			return nil
		})
	}
	_ = g.Wait()
	b.finish(false)
}

// runFailFast races every task and aborts the batch on the first failure.
//
// Tasks still running are cancelled through their context. A task that
// ignores cancellation runs to completion, but its late outcome is dropped
// into a buffered channel nobody reads and never reaches the result.
func (o *Orchestrator) runFailFast(parent context.Context, b *batch) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	n := len(b.handles)
	results := make(chan domain.Outcome, n)
	started := make([]atomic.Int32, n)

	var sem *semaphore.Weighted
	if o.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(o.maxConcurrency))
	}

	for i, h := range b.handles {
		go func() {
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
			}
			if ctx.Err() != nil {
				return
			}
			results <- b.runner.run(ctx, i, h, &started[i])
		}()
	}

	var cause error
	for remaining := n; remaining > 0 && cause == nil; {
		select {
		case out := <-results:
			remaining--
			b.record(out)
			b.notify(out)
			if !out.Succeeded() {
				cause = fmt.Errorf("batch aborted by failure of %q (index %d)", out.HandleID, out.Index)
			}
		case <-parent.Done():
			cause = parent.Err()
		}
	}
	if cause == nil {
		b.finish(false)
		return
	}

	// Outcomes already delivered before the abort are kept.
drain:
	for {
		select {
		case out := <-results:
			b.record(out)
			b.notify(out)
		default:
			break drain
		}
	}
	cancel()

	for i := range b.handles {
		if b.filled[i] {
			continue
		}
		kind := domain.ErrNotAttempted
		attempts := int(started[i].Load())
		if attempts > 0 {
			kind = domain.ErrAbortedBeforeCompletion
		}
		out := b.synthesize(i, kind, cause, attempts)
		b.record(out)
		b.notify(out)
	}
	b.finish(true)
}
