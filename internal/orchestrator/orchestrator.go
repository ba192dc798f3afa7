// Package orchestrator runs batches of independent fetch operations under a
// concurrency policy and collects their outcomes in input order.
//
// A batch is a slice of domain.Handle values. Each handle is executed by a
// TaskRunner, which applies a RetryPolicy around single fetch attempts. The
// Orchestrator schedules runners according to the selected
// domain.ConcurrencyPolicy and assembles a domain.BatchResult once the
// policy's termination condition fires:
//
//   - Sequential: one task at a time, in input order, failures recorded and skipped.
//   - ParallelFailFast: all tasks at once; the first failure aborts the batch.
//   - ParallelBestEffort: all tasks at once; waits for every task.
//
// Result slots are indexed by input position and written exactly once, so
// completion order never permutes the result.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// Observer is notified of every final outcome, in completion order.
// Calls are serialized and run off the scheduling path, so a slow observer
// cannot influence the batch result. RunBatch returns once every outcome
// has been delivered.
type Observer func(batchID string, o domain.Outcome)

// Orchestrator drives batches of handles.
type Orchestrator struct {
	log            *slog.Logger
	metrics        MetricsPolicy
	clock          Clock
	observers      []Observer
	maxConcurrency int
	newID          func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics sets the metrics hooks.
func WithMetrics(m MetricsPolicy) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock sets the clock used for retry delays.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver adds a progress observer. May be given more than once.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithMaxConcurrency bounds the number of tasks in flight under parallel
// policies. Zero or negative means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.maxConcurrency = n
	}
}

// WithIDGenerator overrides how batch IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:     slog.Default(),
		metrics: NoopMetrics{},
		clock:   SystemClock{},
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunBatch executes handles under policy and returns the ordered result.
//
// It only returns an error when the input is malformed (wrapping
// domain.ErrInvalidBatch); individual task failures are reported in the
// result. Cancelling ctx stops scheduling: tasks that never started are
// recorded with domain.ErrNotAttempted.
func (o *Orchestrator) RunBatch(
	ctx context.Context,
	handles []domain.Handle,
	policy domain.ConcurrencyPolicy,
	retry RetryPolicy,
) (*domain.BatchResult, error) {
	if !policy.Valid() {
		return nil, domain.InvalidPolicy(policy)
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateHandles(handles); err != nil {
		return nil, err
	}

	b := &batch{
		result: &domain.BatchResult{
			ID:       o.newID(),
			Policy:   policy,
			State:    domain.BatchIdle,
			Outcomes: make([]domain.Outcome, len(handles)),
		},
		handles:   handles,
		filled:    make([]bool, len(handles)),
		runner:    NewTaskRunner(retry, o.clock, o.metrics, o.log),
		observers: o.observers,
	}
	logger := o.log.With("batch", b.result.ID, "policy", policy.String())

	b.result.StartedAt = o.clock.Now()
	if err := b.transition(domain.BatchRunning); err != nil {
		return nil, err
	}
	b.startNotifier()
	logger.Info("Batch started", "handles", len(handles), "max_attempts", retry.MaxAttempts)

	switch policy {
	case domain.Sequential:
		o.runSequential(ctx, b)
	case domain.ParallelBestEffort:
		o.runBestEffort(ctx, b)
	case domain.ParallelFailFast:
		o.runFailFast(ctx, b)
	}
	b.result.FinishedAt = o.clock.Now()
	b.stopNotifier()

	for _, out := range b.result.Outcomes {
		o.metrics.ObserveOutcome(policy, out)
	}
	o.metrics.ObserveBatch(b.result)

	summary := b.result.Summary()
	logger.Info("Batch finished",
		"state", b.result.State,
		"status", b.result.Status,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.String(),
	)
	return b.result, nil
}

// batch holds the mutable state of one RunBatch call.
type batch struct {
	result    *domain.BatchResult
	handles   []domain.Handle
	filled    []bool
	runner    *TaskRunner
	observers []Observer

	events   chan domain.Outcome
	notifyWg sync.WaitGroup
}

func (b *batch) transition(to domain.BatchState) error {
	if !domain.CanTransition(b.result.State, to) {
		return fmt.Errorf("batch %s: invalid state transition %s -> %s", b.result.ID, b.result.State, to)
	}
	b.result.State = to
	return nil
}

// finish moves the batch to its terminal state and sets the overall status.
func (b *batch) finish(aborted bool) {
	if aborted {
		_ = b.transition(domain.BatchAborted)
		b.result.Status = domain.StatusAbortedOnFirstFailure
		return
	}
	_ = b.transition(domain.BatchCompleted)
	b.result.Status = domain.StatusFor(b.result.Outcomes)
}

// record stores an outcome in its slot. Each slot has a single writer.
func (b *batch) record(out domain.Outcome) {
	b.result.Outcomes[out.Index] = out
	b.filled[out.Index] = true
}

// startNotifier delivers outcomes to the observers from a single goroutine,
// so a slow observer never holds up scheduling or result collection.
func (b *batch) startNotifier() {
	if len(b.observers) == 0 {
		return
	}
	// Every slot is reported exactly once, so sends never block.
	b.events = make(chan domain.Outcome, len(b.handles))
	b.notifyWg.Add(1)
	go func() {
		defer b.notifyWg.Done()
		for out := range b.events {
			for _, fn := range b.observers {
				fn(b.result.ID, out)
			}
		}
	}()
}

// stopNotifier waits until every queued outcome has been delivered.
func (b *batch) stopNotifier() {
	if b.events == nil {
		return
	}
	close(b.events)
	b.notifyWg.Wait()
}

func (b *batch) notify(out domain.Outcome) {
	if b.events != nil {
		b.events <- out
	}
}

// synthesize builds the outcome of a task the orchestrator gave up on.
// Attempts is never below one so that every outcome satisfies 1 <= Attempts <= MaxAttempts.
func (b *batch) synthesize(index int, kind, cause error, attempts int) domain.Outcome {
	h := b.handles[index]
	if attempts < 1 {
		attempts = 1
	}
	return domain.Outcome{
		Index:    index,
		HandleID: h.ID,
		Err: &domain.AbortedError{
			Kind:     kind,
			HandleID: h.ID,
			Index:    index,
			Cause:    cause,
		},
		Attempts: attempts,
	}
}
