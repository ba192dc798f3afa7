package domain

import (
	"errors"
	"time"
)

// Outcome is the terminal record for one handle.
// A nil Err means success; Value is only meaningful in that case.
type Outcome struct {
	Index    int
	HandleID string
	Value    any
	Err      error
	Attempts int
	Duration time.Duration
}

// Succeeded reports whether the handle produced a value.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Result returns "success" or "failure", used as a low-cardinality label.
func (o Outcome) Result() string {
	if o.Succeeded() {
		return "success"
	}
	return "failure"
}

// Aborted reports whether the outcome was synthesized by the orchestrator
// rather than produced by the handle's own fetch attempts.
func (o Outcome) Aborted() bool {
	var ae *AbortedError
	return errors.As(o.Err, &ae)
}

// BatchResult is the final, ordered aggregate of a batch.
// Outcomes[i] always corresponds to the i-th input handle.
type BatchResult struct {
	ID         string
	Policy     ConcurrencyPolicy
	State      BatchState
	Status     OverallStatus
	Outcomes   []Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// BatchSummary holds aggregate counts for a batch.
type BatchSummary struct {
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Aborted      int           `json:"aborted"`
	NotAttempted int           `json:"not_attempted"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Summary counts outcomes by kind. Aborted and NotAttempted are subsets of Failed.
func (r *BatchResult) Summary() BatchSummary {
	s := BatchSummary{
		Total:   len(r.Outcomes),
		Elapsed: r.FinishedAt.Sub(r.StartedAt),
	}
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			s.Succeeded++
			continue
		}
		s.Failed++
		switch {
		case errors.Is(o.Err, ErrNotAttempted):
			s.NotAttempted++
		case errors.Is(o.Err, ErrAbortedBeforeCompletion):
			s.Aborted++
		}
	}
	return s
}

// Failures returns the failed outcomes in input order.
func (r *BatchResult) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// StatusFor derives AllSucceeded or PartialFailure from a set of outcomes.
func StatusFor(outcomes []Outcome) OverallStatus {
	for _, o := range outcomes {
		if !o.Succeeded() {
			return StatusPartialFailure
		}
	}
	return StatusAllSucceeded
}
