package metrics

import (
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

var allStatuses = []domain.OverallStatus{
	domain.StatusAllSucceeded,
	domain.StatusPartialFailure,
	domain.StatusAbortedOnFirstFailure,
}

// Recorder feeds orchestrator events into the Prometheus vectors.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ObserveAttempt(handleID string, err error, latency time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	FetchAttemptsTotal.WithLabelValues(result).Inc()
	FetchLatency.Observe(latency.Seconds())
}

func (r *Recorder) ObserveOutcome(policy domain.ConcurrencyPolicy, o domain.Outcome) {
	result := o.Result()
	if o.Aborted() {
		result = "aborted"
	}
	OutcomesTotal.WithLabelValues(policy.String(), result).Inc()
}

func (r *Recorder) ObserveBatch(res *domain.BatchResult) {
	BatchesTotal.WithLabelValues(res.Policy.String(), string(res.Status)).Inc()
	BatchDuration.WithLabelValues(res.Policy.String()).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	for _, s := range allStatuses {
		v := 0.0
		if s == res.Status {
			v = 1
		}
		LastBatchStatus.WithLabelValues(string(s)).Set(v)
	}
}
