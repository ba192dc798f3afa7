package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// fakeClock fires every timer immediately and records the requested delays.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// blockingClock never fires, so a retry delay only ends through cancellation.
type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Now() }
func (blockingClock) After(time.Duration) <-chan time.Time { return nil }

var errBoom = errors.New("boom")

func okFetch(v any) domain.FetchFunc {
	return func(ctx context.Context) (any, error) { return v, nil }
}

func failFetch(err error) domain.FetchFunc {
	return func(ctx context.Context) (any, error) { return nil, err }
}

// sleepyFetch succeeds after d unless ctx is cancelled first.
func sleepyFetch(v any, d time.Duration) domain.FetchFunc {
	return func(ctx context.Context) (any, error) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// countingFetch counts calls and fails the first `failures` of them.
type countingFetch struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (c *countingFetch) Fetch(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return nil, errBoom
	}
	return c.calls, nil
}

func (c *countingFetch) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingMetrics counts hook invocations.
type recordingMetrics struct {
	mu       sync.Mutex
	attempts int
	outcomes int
	batches  int
}

func (m *recordingMetrics) ObserveAttempt(string, error, time.Duration) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveOutcome(domain.ConcurrencyPolicy, domain.Outcome) {
	m.mu.Lock()
	m.outcomes++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveBatch(*domain.BatchResult) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
}
