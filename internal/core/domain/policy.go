package domain

import "strings"

// ConcurrencyPolicy selects how the handles of a batch are scheduled.
type ConcurrencyPolicy string

const (
	// Sequential runs tasks one at a time in input order; failures do not stop the sequence.
	Sequential ConcurrencyPolicy = "sequential"
	// ParallelFailFast starts every task at once and aborts the batch on the first failure.
	ParallelFailFast ConcurrencyPolicy = "parallel_fail_fast"
	// ParallelBestEffort starts every task at once and waits for all of them.
	ParallelBestEffort ConcurrencyPolicy = "parallel_best_effort"
)

// Valid reports whether p is one of the known policies.
func (p ConcurrencyPolicy) Valid() bool {
	switch p {
	case Sequential, ParallelFailFast, ParallelBestEffort:
		return true
	default:
		return false
	}
}

func (p ConcurrencyPolicy) String() string { return string(p) }

// ParsePolicy converts a config or flag value into a ConcurrencyPolicy.
func ParsePolicy(s string) (ConcurrencyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "serial":
		return Sequential, nil
	case "parallel_fail_fast", "fail_fast", "failfast":
		return ParallelFailFast, nil
	case "parallel_best_effort", "best_effort", "besteffort":
		return ParallelBestEffort, nil
	default:
		return "", InvalidPolicy(ConcurrencyPolicy(s))
	}
}

// OverallStatus summarizes a finished batch.
type OverallStatus string

const (
	StatusAllSucceeded          OverallStatus = "all_succeeded"
	StatusPartialFailure        OverallStatus = "partial_failure"
	StatusAbortedOnFirstFailure OverallStatus = "aborted_on_first_failure"
)

// BatchState is the orchestrator lifecycle of a single batch.
type BatchState string

const (
	BatchIdle      BatchState = "idle"
	BatchRunning   BatchState = "running"
	BatchCompleted BatchState = "completed"
	BatchAborted   BatchState = "aborted"
)

// validBatchTransitions defines allowed state transitions.
var validBatchTransitions = map[BatchState][]BatchState{
	BatchIdle:    {BatchRunning},
	BatchRunning: {BatchCompleted, BatchAborted},
}

// CanTransition checks if a batch may move from one state to another.
func CanTransition(from, to BatchState) bool {
	for _, target := range validBatchTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s BatchState) IsTerminal() bool {
	return s == BatchCompleted || s == BatchAborted
}
