package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	okBefore := testutil.ToFloat64(FetchAttemptsTotal.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(FetchAttemptsTotal.WithLabelValues("failure"))
	r.ObserveAttempt("a", nil, 10*time.Millisecond)
	r.ObserveAttempt("b", errors.New("boom"), 5*time.Millisecond)
	if got := testutil.ToFloat64(FetchAttemptsTotal.WithLabelValues("success")) - okBefore; got != 1 {
		t.Errorf("success attempts delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(FetchAttemptsTotal.WithLabelValues("failure")) - failBefore; got != 1 {
		t.Errorf("failure attempts delta = %v, want 1", got)
	}

	policy := domain.ParallelFailFast
	abortedBefore := testutil.ToFloat64(OutcomesTotal.WithLabelValues(policy.String(), "aborted"))
	r.ObserveOutcome(policy, domain.Outcome{
		HandleID: "c",
		Err:      &domain.AbortedError{Kind: domain.ErrAbortedBeforeCompletion, HandleID: "c", Cause: errors.New("x")},
		Attempts: 1,
	})
	if got := testutil.ToFloat64(OutcomesTotal.WithLabelValues(policy.String(), "aborted")) - abortedBefore; got != 1 {
		t.Errorf("aborted outcomes delta = %v, want 1", got)
	}

	start := time.Now()
	r.ObserveBatch(&domain.BatchResult{
		Policy:     policy,
		Status:     domain.StatusAbortedOnFirstFailure,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	})
	if got := testutil.ToFloat64(LastBatchStatus.WithLabelValues(string(domain.StatusAbortedOnFirstFailure))); got != 1 {
		t.Errorf("last status gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LastBatchStatus.WithLabelValues(string(domain.StatusAllSucceeded))); got != 0 {
		t.Errorf("other status gauge = %v, want 0", got)
	}
}
