package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

var allPolicies = []domain.ConcurrencyPolicy{
	domain.Sequential,
	domain.ParallelFailFast,
	domain.ParallelBestEffort,
}

func newTestOrchestrator(opts ...Option) *Orchestrator {
	base := []Option{
		WithClock(newFakeClock()),
		WithIDGenerator(func() string { return "batch-test" }),
	}
	return New(append(base, opts...)...)
}

// -----------------------------------------------------------------------------
// Invariants shared by every policy
// -----------------------------------------------------------------------------

func TestRunBatch_OrderInvariant(t *testing.T) {
	for _, policy := range allPolicies {
		t.Run(policy.String(), func(t *testing.T) {
			t.Parallel()

			// Later handles finish first.
			var handles []domain.Handle
			for i := 0; i < 8; i++ {
				d := time.Duration(8-i) * 5 * time.Millisecond
				handles = append(handles, domain.NewHandle(fmt.Sprintf("h%d", i), sleepyFetch(i, d)))
			}

			res, err := newTestOrchestrator().RunBatch(context.Background(), handles, policy, NoRetry())
			if err != nil {
				t.Fatalf("RunBatch: %v", err)
			}
			if len(res.Outcomes) != len(handles) {
				t.Fatalf("len(outcomes) = %d, want %d", len(res.Outcomes), len(handles))
			}
			for i, out := range res.Outcomes {
				if out.Index != i || out.HandleID != handles[i].ID {
					t.Errorf("outcomes[%d] = {index %d, id %q}", i, out.Index, out.HandleID)
				}
				if out.Value != i {
					t.Errorf("outcomes[%d].Value = %v, want %d", i, out.Value, i)
				}
				if out.Attempts < 1 {
					t.Errorf("outcomes[%d].Attempts = %d", i, out.Attempts)
				}
			}
			if res.Status != domain.StatusAllSucceeded || res.State != domain.BatchCompleted {
				t.Errorf("status=%s state=%s, want all_succeeded/completed", res.Status, res.State)
			}
			if res.Policy != policy || res.ID != "batch-test" {
				t.Errorf("unexpected metadata: policy=%s id=%s", res.Policy, res.ID)
			}
		})
	}
}

func TestRunBatch_IndependentDuplicates(t *testing.T) {
	for _, policy := range allPolicies {
		t.Run(policy.String(), func(t *testing.T) {
			var calls sync.Map
			fetch := func(name string) domain.FetchFunc {
				return func(ctx context.Context) (any, error) {
					v, _ := calls.LoadOrStore(name, new(atomic.Int32))
					v.(*atomic.Int32).Add(1)
					return "content of " + name, nil
				}
			}
			handles := []domain.Handle{
				domain.NewHandle("fileA", fetch("fileA")),
				domain.NewHandle("fileB", fetch("fileB")),
				domain.NewHandle("fileA", fetch("fileA")),
			}

			res, err := newTestOrchestrator().RunBatch(context.Background(), handles, policy, NoRetry())
			if err != nil {
				t.Fatalf("RunBatch: %v", err)
			}
			if len(res.Outcomes) != 3 {
				t.Fatalf("len(outcomes) = %d, want 3", len(res.Outcomes))
			}
			if res.Outcomes[0].HandleID != "fileA" || res.Outcomes[2].HandleID != "fileA" {
				t.Errorf("duplicates not preserved: %+v", res.Outcomes)
			}
			v, _ := calls.Load("fileA")
			if got := v.(*atomic.Int32).Load(); got != 2 {
				t.Errorf("fileA fetched %d times, want 2", got)
			}
		})
	}
}

func TestRunBatch_EmptyBatch(t *testing.T) {
	for _, policy := range allPolicies {
		res, err := newTestOrchestrator().RunBatch(context.Background(), nil, policy, NoRetry())
		if err != nil {
			t.Fatalf("%s: RunBatch: %v", policy, err)
		}
		if len(res.Outcomes) != 0 || res.Status != domain.StatusAllSucceeded {
			t.Errorf("%s: got %d outcomes, status %s", policy, len(res.Outcomes), res.Status)
		}
	}
}

func TestRunBatch_InvalidInput(t *testing.T) {
	o := newTestOrchestrator()
	ok := []domain.Handle{domain.NewHandle("a", okFetch(1))}

	tests := []struct {
		name    string
		handles []domain.Handle
		policy  domain.ConcurrencyPolicy
		retry   RetryPolicy
	}{
		{"unknown policy", ok, domain.ConcurrencyPolicy("round_robin"), NoRetry()},
		{"empty id", []domain.Handle{domain.NewHandle("", okFetch(1))}, domain.Sequential, NoRetry()},
		{"nil fetch", []domain.Handle{{ID: "a"}}, domain.Sequential, NoRetry()},
		{"zero attempts", ok, domain.Sequential, RetryPolicy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.RunBatch(context.Background(), tt.handles, tt.policy, tt.retry)
			if !errors.Is(err, domain.ErrInvalidBatch) {
				t.Fatalf("expected ErrInvalidBatch, got %v", err)
			}
			if res != nil {
				t.Error("expected nil result on invalid input")
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Sequential
// -----------------------------------------------------------------------------

func TestRunBatch_SequentialCompleteness(t *testing.T) {
	var mu sync.Mutex
	var events []string
	trace := func(name string, err error) domain.FetchFunc {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			events = append(events, "start "+name)
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			events = append(events, "end "+name)
			mu.Unlock()
			return name, err
		}
	}
	var observed []int
	o := newTestOrchestrator(WithObserver(func(_ string, out domain.Outcome) {
		observed = append(observed, out.Index)
	}))

	handles := []domain.Handle{
		domain.NewHandle("ok1", trace("ok1", nil)),
		domain.NewHandle("fail", trace("fail", errBoom)),
		domain.NewHandle("ok2", trace("ok2", nil)),
	}
	res, err := o.RunBatch(context.Background(), handles, domain.Sequential, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	want := []bool{true, false, true}
	for i, out := range res.Outcomes {
		if out.Succeeded() != want[i] {
			t.Errorf("outcomes[%d].Succeeded() = %v, want %v", i, out.Succeeded(), want[i])
		}
	}
	if res.Status != domain.StatusPartialFailure || res.State != domain.BatchCompleted {
		t.Errorf("status=%s state=%s", res.Status, res.State)
	}

	wantEvents := []string{
		"start ok1", "end ok1",
		"start fail", "end fail",
		"start ok2", "end ok2",
	}
	if fmt.Sprint(events) != fmt.Sprint(wantEvents) {
		t.Errorf("events = %v\nwant     %v", events, wantEvents)
	}
	if fmt.Sprint(observed) != "[0 1 2]" {
		t.Errorf("observed = %v, want [0 1 2]", observed)
	}
}

func TestRunBatch_SequentialCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handles := []domain.Handle{
		domain.NewHandle("first", func(context.Context) (any, error) {
			cancel()
			return "done", nil
		}),
		domain.NewHandle("second", okFetch(2)),
	}

	res, err := newTestOrchestrator().RunBatch(ctx, handles, domain.Sequential, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if !res.Outcomes[0].Succeeded() {
		t.Errorf("first outcome should succeed: %v", res.Outcomes[0].Err)
	}
	if !errors.Is(res.Outcomes[1].Err, domain.ErrNotAttempted) {
		t.Errorf("second outcome should be not-attempted, got %v", res.Outcomes[1].Err)
	}
	if res.Outcomes[1].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Outcomes[1].Attempts)
	}
	if res.Status != domain.StatusPartialFailure {
		t.Errorf("status = %s", res.Status)
	}
}

// -----------------------------------------------------------------------------
// Parallel fail-fast
// -----------------------------------------------------------------------------

func TestRunBatch_FailFastAbort(t *testing.T) {
	handles := make([]domain.Handle, 5)
	for i := range handles {
		handles[i] = domain.NewHandle(fmt.Sprintf("h%d", i), sleepyFetch(i, 5*time.Second))
	}
	handles[2] = domain.NewHandle("h2", failFetch(errBoom))

	start := time.Now()
	res, err := newTestOrchestrator().RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("fail-fast batch waited for slow tasks")
	}

	if res.Status != domain.StatusAbortedOnFirstFailure || res.State != domain.BatchAborted {
		t.Fatalf("status=%s state=%s", res.Status, res.State)
	}
	if len(res.Outcomes) != 5 {
		t.Fatalf("len(outcomes) = %d", len(res.Outcomes))
	}

	var fe *domain.FetchError
	if !errors.As(res.Outcomes[2].Err, &fe) || fe.Index != 2 {
		t.Errorf("outcomes[2] should carry the fetch failure, got %v", res.Outcomes[2].Err)
	}

	aborted := 0
	for i, out := range res.Outcomes {
		if out.Index != i {
			t.Errorf("outcomes[%d].Index = %d", i, out.Index)
		}
		if out.Attempts != 1 {
			t.Errorf("outcomes[%d].Attempts = %d", i, out.Attempts)
		}
		var ae *domain.AbortedError
		if errors.As(out.Err, &ae) {
			aborted++
			if ae.Index != i {
				t.Errorf("aborted error index = %d, want %d", ae.Index, i)
			}
		}
	}
	if aborted == 0 {
		t.Error("expected at least one aborted outcome")
	}
	if got := res.Summary(); got.Failed != 5 || got.Aborted+got.NotAttempted != 4 {
		t.Errorf("summary = %+v", got)
	}
}

func TestRunBatch_FailFastDiscardsUninterruptibleStragglers(t *testing.T) {
	running := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	stubborn := func(ctx context.Context) (any, error) {
		close(running)
		<-release // ignores ctx
		close(finished)
		return "late", nil
	}
	bad := func(ctx context.Context) (any, error) {
		<-running
		return nil, errBoom
	}
	handles := []domain.Handle{
		domain.NewHandle("stubborn", stubborn),
		domain.NewHandle("bad", bad),
	}

	res, err := newTestOrchestrator().RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if !errors.Is(res.Outcomes[0].Err, domain.ErrAbortedBeforeCompletion) {
		t.Fatalf("outcomes[0] = %v, want aborted-before-completion", res.Outcomes[0].Err)
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("straggler never finished")
	}
	if res.Outcomes[0].Value != nil || !errors.Is(res.Outcomes[0].Err, domain.ErrAbortedBeforeCompletion) {
		t.Error("late result leaked into the batch result")
	}
}

func TestRunBatch_FailFastAllSucceed(t *testing.T) {
	handles := []domain.Handle{
		domain.NewHandle("a", okFetch("a")),
		domain.NewHandle("b", okFetch("b")),
	}
	res, err := newTestOrchestrator().RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != domain.StatusAllSucceeded || res.State != domain.BatchCompleted {
		t.Errorf("status=%s state=%s", res.Status, res.State)
	}
}

func TestRunBatch_FailFastRetriesBeforeAborting(t *testing.T) {
	flaky := &countingFetch{failures: 2}
	handles := []domain.Handle{domain.NewHandle("flaky", flaky.Fetch)}

	res, err := newTestOrchestrator().RunBatch(context.Background(), handles, domain.ParallelFailFast,
		RetryPolicy{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != domain.StatusAllSucceeded || res.Outcomes[0].Attempts != 3 {
		t.Errorf("status=%s attempts=%d", res.Status, res.Outcomes[0].Attempts)
	}
}

func TestRunBatch_FailFastWithConcurrencyLimit(t *testing.T) {
	handles := []domain.Handle{
		domain.NewHandle("bad", failFetch(errBoom)),
		domain.NewHandle("queued1", okFetch(1)),
		domain.NewHandle("queued2", okFetch(2)),
	}
	o := newTestOrchestrator(WithMaxConcurrency(1))

	res, err := o.RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d", len(res.Outcomes))
	}
	for i, out := range res.Outcomes {
		if out.Index != i || out.Attempts != 1 {
			t.Errorf("outcomes[%d] = index %d attempts %d", i, out.Index, out.Attempts)
		}
	}
	if res.Outcomes[0].Succeeded() {
		t.Error("outcomes[0] should fail")
	}
}

// -----------------------------------------------------------------------------
// Parallel best-effort
// -----------------------------------------------------------------------------

func TestRunBatch_BestEffortTotality(t *testing.T) {
	handles := []domain.Handle{
		domain.NewHandle("ok1", sleepyFetch("ok1", 10*time.Millisecond)),
		domain.NewHandle("fail1", failFetch(errBoom)),
		domain.NewHandle("ok2", sleepyFetch("ok2", 20*time.Millisecond)),
		domain.NewHandle("fail2", failFetch(errors.New("other"))),
	}
	var observed atomic.Int32
	o := newTestOrchestrator(WithObserver(func(string, domain.Outcome) { observed.Add(1) }))

	res, err := o.RunBatch(context.Background(), handles, domain.ParallelBestEffort, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	want := []bool{true, false, true, false}
	for i, out := range res.Outcomes {
		if out.Succeeded() != want[i] {
			t.Errorf("outcomes[%d].Succeeded() = %v, want %v", i, out.Succeeded(), want[i])
		}
		if out.Aborted() {
			t.Errorf("outcomes[%d] unexpectedly aborted", i)
		}
	}
	if res.Status != domain.StatusPartialFailure || res.State != domain.BatchCompleted {
		t.Errorf("status=%s state=%s", res.Status, res.State)
	}
	if observed.Load() != 4 {
		t.Errorf("observer saw %d outcomes, want 4", observed.Load())
	}
	if s := res.Summary(); s.Succeeded != 2 || s.Failed != 2 {
		t.Errorf("summary = %+v", s)
	}
	if f := res.Failures(); len(f) != 2 || f[0].Index != 1 || f[1].Index != 3 {
		t.Errorf("failures = %+v", f)
	}
}

func TestRunBatch_BestEffortRespectsMaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}
	handles := make([]domain.Handle, 12)
	for i := range handles {
		handles[i] = domain.NewHandle(fmt.Sprintf("h%d", i), fetch)
	}

	o := newTestOrchestrator(WithMaxConcurrency(3))
	if _, err := o.RunBatch(context.Background(), handles, domain.ParallelBestEffort, NoRetry()); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestRunBatch_MetricsHooks(t *testing.T) {
	m := &recordingMetrics{}
	flaky := &countingFetch{failures: 1}
	handles := []domain.Handle{
		domain.NewHandle("flaky", flaky.Fetch),
		domain.NewHandle("ok", okFetch(1)),
	}

	o := newTestOrchestrator(WithMetrics(m))
	if _, err := o.RunBatch(context.Background(), handles, domain.ParallelBestEffort, RetryPolicy{MaxAttempts: 2}); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if m.attempts != 3 || m.outcomes != 2 || m.batches != 1 {
		t.Errorf("metrics = attempts %d outcomes %d batches %d", m.attempts, m.outcomes, m.batches)
	}
}

// -----------------------------------------------------------------------------
// Observers
// -----------------------------------------------------------------------------

// outcomeLog collects observed outcomes and flags overlapping calls.
type outcomeLog struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
	inCall   atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (l *outcomeLog) observe(_ string, out domain.Outcome) {
	if l.inCall.Add(1) > 1 {
		l.overlap.Store(true)
	}
	defer l.inCall.Add(-1)
	time.Sleep(l.delay)
	l.mu.Lock()
	l.outcomes = append(l.outcomes, out)
	l.mu.Unlock()
}

func (l *outcomeLog) indexes() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := make([]int, len(l.outcomes))
	for i, out := range l.outcomes {
		idx[i] = out.Index
	}
	return idx
}

func delayedFail(d time.Duration) domain.FetchFunc {
	return func(ctx context.Context) (any, error) {
		time.Sleep(d)
		return nil, errBoom
	}
}

func TestRunBatch_FailFastSlowObserverDoesNotChangeResult(t *testing.T) {
	handles := []domain.Handle{
		domain.NewHandle("ok", okFetch("ok")),
		domain.NewHandle("bad", delayedFail(10*time.Millisecond)),
		domain.NewHandle("slow", sleepyFetch("slow", 150*time.Millisecond)),
	}

	plain, err := newTestOrchestrator().RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	rec := &outcomeLog{delay: 300 * time.Millisecond}
	observed, err := newTestOrchestrator(WithObserver(rec.observe)).
		RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	for _, res := range []*domain.BatchResult{plain, observed} {
		if res.Status != domain.StatusAbortedOnFirstFailure {
			t.Errorf("status = %s", res.Status)
		}
		if !res.Outcomes[0].Succeeded() {
			t.Errorf("outcomes[0] = %v, want success", res.Outcomes[0].Err)
		}
		if !errors.Is(res.Outcomes[2].Err, domain.ErrAbortedBeforeCompletion) {
			t.Errorf("outcomes[2] = %v, want aborted before completion", res.Outcomes[2].Err)
		}
	}
	for i := range handles {
		a, b := plain.Outcomes[i], observed.Outcomes[i]
		if a.Succeeded() != b.Succeeded() || a.Aborted() != b.Aborted() {
			t.Errorf("outcomes[%d] differ with a slow observer: %v vs %v", i, a.Err, b.Err)
		}
	}

	if got := rec.indexes(); fmt.Sprint(got) != "[0 1 2]" {
		t.Errorf("observed order = %v, want [0 1 2]", got)
	}
	if rec.overlap.Load() {
		t.Error("observer calls overlapped")
	}
}

func TestRunBatch_ObserverSeesForcedOutcomesLast(t *testing.T) {
	handles := []domain.Handle{
		domain.NewHandle("bad", failFetch(errBoom)),
		domain.NewHandle("s1", sleepyFetch(1, 5*time.Second)),
		domain.NewHandle("s2", sleepyFetch(2, 5*time.Second)),
		domain.NewHandle("s3", sleepyFetch(3, 5*time.Second)),
	}
	rec := &outcomeLog{}
	res, err := newTestOrchestrator(WithObserver(rec.observe)).
		RunBatch(context.Background(), handles, domain.ParallelFailFast, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != domain.StatusAbortedOnFirstFailure {
		t.Fatalf("status = %s", res.Status)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.outcomes) != len(handles) {
		t.Fatalf("observed %d outcomes, want %d", len(rec.outcomes), len(handles))
	}
	seen := make(map[int]bool)
	for i, out := range rec.outcomes {
		if seen[out.Index] {
			t.Errorf("outcome %d observed twice", out.Index)
		}
		seen[out.Index] = true
		if wantForced := i > 0; out.Aborted() != wantForced {
			t.Errorf("observed[%d] (index %d) aborted = %v, want %v", i, out.Index, out.Aborted(), wantForced)
		}
	}
	if rec.outcomes[0].Index != 0 {
		t.Errorf("first observed index = %d, want the real failure at 0", rec.outcomes[0].Index)
	}
}

func TestRunBatch_BestEffortSlowObserverDoesNotHoldSlots(t *testing.T) {
	var mu sync.Mutex
	var lastEnd time.Time
	fetch := func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		lastEnd = time.Now()
		mu.Unlock()
		return "ok", nil
	}
	handles := make([]domain.Handle, 6)
	for i := range handles {
		handles[i] = domain.NewHandle(fmt.Sprintf("h%d", i), fetch)
	}

	rec := &outcomeLog{delay: 40 * time.Millisecond}
	o := newTestOrchestrator(WithMaxConcurrency(2), WithObserver(rec.observe))

	start := time.Now()
	res, err := o.RunBatch(context.Background(), handles, domain.ParallelBestEffort, NoRetry())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Status != domain.StatusAllSucceeded {
		t.Errorf("status = %s", res.Status)
	}

	mu.Lock()
	fetching := lastEnd.Sub(start)
	mu.Unlock()
	if fetching > 150*time.Millisecond {
		t.Errorf("fetches took %v, slow observer held concurrency slots", fetching)
	}
	if n := len(rec.indexes()); n != len(handles) {
		t.Errorf("observed %d outcomes before RunBatch returned, want %d", n, len(handles))
	}
	if rec.overlap.Load() {
		t.Error("observer calls overlapped")
	}
}
