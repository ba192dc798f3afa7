package orchestrator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultJitter      = 100 * time.Millisecond
)

// RandSource supplies jitter. *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	Int64N(n int64) int64
}

// globalRand uses the goroutine-safe top-level math/rand/v2 generator.
type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// RetryPolicy governs per-task retries.
// The delay before attempt k (k > 1) is BaseDelay plus a uniform draw from [0, Jitter].
type RetryPolicy struct {
	// MaxAttempts is the maximum number of tries for a handle. 1 disables retry.
	MaxAttempts int

	// BaseDelay is the fixed part of every inter-attempt delay.
	BaseDelay time.Duration

	// Jitter bounds the random part of every inter-attempt delay.
	Jitter time.Duration

	// Rand overrides the jitter source, mainly for tests.
	Rand RandSource
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Jitter:      DefaultJitter,
	}
}

// NoRetry runs every handle exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Validate rejects policies that cannot be honored.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", domain.ErrInvalidBatch, p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: negative base delay %v", domain.ErrInvalidBatch, p.BaseDelay)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("%w: negative jitter %v", domain.ErrInvalidBatch, p.Jitter)
	}
	if p.Jitter > 0 && p.Jitter >= math.MaxInt64-p.BaseDelay {
		return fmt.Errorf("%w: base delay %v plus jitter %v overflows", domain.ErrInvalidBatch, p.BaseDelay, p.Jitter)
	}
	return nil
}

// ShouldRetry reports whether another attempt is allowed after the given one failed.
// Every error is considered retryable.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return attempt < p.MaxAttempts
}

// NextDelay returns the suspension before the attempt following the given one.
// The value is recomputed on every call and always lies in [BaseDelay, BaseDelay+Jitter].
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if p.Jitter <= 0 {
		return p.BaseDelay
	}
	src := p.Rand
	if src == nil {
		src = globalRand{}
	}
	return p.BaseDelay + time.Duration(src.Int64N(int64(p.Jitter)+1))
}
