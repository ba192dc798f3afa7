package fetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/orchestrator"
)

// WithTimeout bounds each call of fn to d. The call's context is cancelled
// when the limit passes; a fetch that ignores it is abandoned and its
// result discarded. A non-positive d returns fn unchanged.
func WithTimeout(fn domain.FetchFunc, d time.Duration) domain.FetchFunc {
	if d <= 0 {
		return fn
	}
	return func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			v   any
			err error
		}
		done := make(chan result, 1)
		go func() {
			v, err := fn(ctx)
			done <- result{v, err}
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case r := <-done:
			return r.v, r.err
		case <-timer.C:
			return nil, fmt.Errorf("%w after %v", ErrTimeout, d)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WithStartDelay waits a random duration in [minDelay, maxDelay] before each call of fn.
// A nil rnd uses the global math/rand/v2 source.
func WithStartDelay(fn domain.FetchFunc, minDelay, maxDelay time.Duration, rnd orchestrator.RandSource) domain.FetchFunc {
	if maxDelay <= 0 || maxDelay < minDelay {
		return fn
	}
	int64n := rand.Int64N
	if rnd != nil {
		int64n = rnd.Int64N
	}
	return func(ctx context.Context) (any, error) {
		delay := minDelay
		if span := int64(maxDelay - minDelay); span > 0 {
			delay += time.Duration(int64n(span + 1))
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
		return fn(ctx)
	}
}
