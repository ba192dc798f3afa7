package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// TaskRunner executes one handle to completion, applying a RetryPolicy.
// It never lets a failure escape: every terminal condition becomes an Outcome.
type TaskRunner struct {
	retry   RetryPolicy
	clock   Clock
	metrics MetricsPolicy
	log     *slog.Logger
}

// NewTaskRunner creates a runner. Nil collaborators fall back to defaults.
func NewTaskRunner(retry RetryPolicy, clock Clock, metrics MetricsPolicy, log *slog.Logger) *TaskRunner {
	if clock == nil {
		clock = SystemClock{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskRunner{retry: retry, clock: clock, metrics: metrics, log: log}
}

// Run fetches h, retrying failed attempts while the policy allows it.
func (r *TaskRunner) Run(ctx context.Context, index int, h domain.Handle) domain.Outcome {
	return r.run(ctx, index, h, nil)
}

// run is Run with an optional counter of started attempts, read by the
// orchestrator when it has to synthesize an outcome for an abandoned task.
func (r *TaskRunner) run(ctx context.Context, index int, h domain.Handle, started *atomic.Int32) domain.Outcome {
	begin := r.clock.Now()
	logger := r.log.With("handle", h.ID, "index", index)

	for attempt := 1; ; attempt++ {
		if started != nil {
			started.Store(int32(attempt))
		}

		value, err := r.attempt(ctx, h)
		if err == nil {
			logger.Debug("Fetch succeeded", "attempt", attempt)
			return domain.Outcome{
				Index:    index,
				HandleID: h.ID,
				Value:    value,
				Attempts: attempt,
				Duration: r.clock.Now().Sub(begin),
			}
		}

		fetchErr := &domain.FetchError{HandleID: h.ID, Index: index, Attempt: attempt, Err: err}
		if !r.retry.ShouldRetry(attempt, fetchErr) {
			logger.Debug("Fetch failed, no attempts left", "attempt", attempt, "error", err)
			return domain.Outcome{
				Index:    index,
				HandleID: h.ID,
				Err:      &domain.RetryExhaustedError{Attempts: attempt, Last: fetchErr},
				Attempts: attempt,
				Duration: r.clock.Now().Sub(begin),
			}
		}

		delay := r.retry.NextDelay(attempt)
		logger.Debug("Fetch attempt failed; backing off",
			"attempt", attempt,
			"sleep", delay.String(),
			"error", err,
		)
		if err := sleep(ctx, r.clock, delay); err != nil {
			return domain.Outcome{
				Index:    index,
				HandleID: h.ID,
				Err: &domain.AbortedError{
					Kind:     domain.ErrAbortedBeforeCompletion,
					HandleID: h.ID,
					Index:    index,
					Cause:    fmt.Errorf("%w (last failure: %w)", err, fetchErr),
				},
				Attempts: attempt,
				Duration: r.clock.Now().Sub(begin),
			}
		}
	}
}

// attempt performs one fetch call, converting a panic into an error.
func (r *TaskRunner) attempt(ctx context.Context, h domain.Handle) (value any, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetch panicked: %v", p)
		}
		r.metrics.ObserveAttempt(h.ID, err, time.Since(start))
	}()
	return h.Fetch(ctx)
}
