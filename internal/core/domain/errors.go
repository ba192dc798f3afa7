package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBatch is returned by RunBatch when the handles or policies are malformed.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrNotAttempted marks a handle whose task was never started.
	ErrNotAttempted = errors.New("not attempted")

	// ErrAbortedBeforeCompletion marks a handle whose task was in flight when the batch stopped.
	ErrAbortedBeforeCompletion = errors.New("aborted before completion")
)

// FetchError wraps a fetcher failure with the identity of its handle.
type FetchError struct {
	HandleID string
	Index    int
	Attempt  int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q (index %d, attempt %d): %v", e.HandleID, e.Index, e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal failure of a handle that used up its attempts.
type RetryExhaustedError struct {
	Attempts int
	Last     *FetchError
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// AbortedError is synthesized by the orchestrator for tasks it stopped or never started.
// Kind is ErrNotAttempted or ErrAbortedBeforeCompletion.
type AbortedError struct {
	Kind     error
	HandleID string
	Index    int
	Cause    error
}

func (e *AbortedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%q (index %d): %v", e.HandleID, e.Index, e.Kind)
	}
	return fmt.Sprintf("%q (index %d): %v: %v", e.HandleID, e.Index, e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AbortedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBatch, fmt.Sprintf(format, args...))
}

// ValidateHandles checks that every handle has an identity and a fetch function.
func ValidateHandles(handles []Handle) error {
	for i, h := range handles {
		if h.ID == "" {
			return invalidf("handle %d has an empty id", i)
		}
		if h.Fetch == nil {
			return invalidf("handle %d (%q) has no fetch function", i, h.ID)
		}
	}
	return nil
}

// InvalidPolicy reports an unknown concurrency policy.
func InvalidPolicy(p ConcurrencyPolicy) error {
	return invalidf("unknown concurrency policy %q", p)
}
