package orchestrator

import (
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// MetricsPolicy defines hooks used by the orchestrator to report
// fetch attempts, task outcomes and finished batches.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// ObserveAttempt records a single fetch call and its latency.
	ObserveAttempt(handleID string, err error, latency time.Duration)

	// ObserveOutcome records the terminal outcome of a handle.
	ObserveOutcome(policy domain.ConcurrencyPolicy, o domain.Outcome)

	// ObserveBatch records a finished batch.
	ObserveBatch(r *domain.BatchResult)
}

// NoopMetrics discards all metric updates.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAttempt(string, error, time.Duration)             {}
func (NoopMetrics) ObserveOutcome(domain.ConcurrencyPolicy, domain.Outcome) {}
func (NoopMetrics) ObserveBatch(*domain.BatchResult)                        {}
