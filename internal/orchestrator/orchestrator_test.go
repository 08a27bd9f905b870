package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osvaldoandrade/gradeq/internal/aggregator"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type samplerFunc func() float64

func (f samplerFunc) UsedFraction() float64 { return f() }

type stubRunner struct {
	delay    time.Duration
	failIDs  map[string]bool
	panicIDs map[string]bool
	blockCtx bool

	active    int32
	maxActive int32
}

func (r *stubRunner) Run(ctx context.Context, sub *domain.Submission, exp domain.Expectations) *domain.FunctionalResult {
	cur := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		max := atomic.LoadInt32(&r.maxActive)
		if cur <= max || atomic.CompareAndSwapInt32(&r.maxActive, max, cur) {
			break
		}
	}

	if r.panicIDs[sub.ID] {
		panic("boom in " + sub.ID)
	}
	if r.blockCtx {
		<-ctx.Done()
	} else if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}

	if r.failIDs[sub.ID] {
		sub.Status = domain.StatusFailed
		return &domain.FunctionalResult{SubmissionID: sub.ID, Success: false, Cause: "induced failure"}
	}
	sub.Status = domain.StatusSucceeded
	return &domain.FunctionalResult{SubmissionID: sub.ID, Success: true, Score: 90}
}

func submissions(n int) []*domain.Submission {
	subs := make([]*domain.Submission, n)
	for i := range subs {
		subs[i] = &domain.Submission{ID: fmt.Sprintf("sub-%d", i), Student: fmt.Sprintf("student-%d", i)}
	}
	return subs
}

func lowMem() MemorySampler { return samplerFunc(func() float64 { return 0.2 }) }

func drain(ch <-chan domain.ProgressEvent) {
	for range ch {
	}
}

func TestProcessExactlyOneResultPerSubmission(t *testing.T) {
	agg := aggregator.New()
	runner := &stubRunner{failIDs: map[string]bool{"sub-2": true, "sub-5": true}}
	o := New(Config{MaxConcurrent: 3, MinBatchSize: 2, MaxBatchSize: 4, WorkspaceDir: t.TempDir()},
		runner, agg, lowMem(), nil)

	events := o.Process(context.Background(), submissions(10), domain.Expectations{})
	drain(events)

	if agg.Len() != 10 {
		t.Fatalf("results = %d, want exactly one per submission", agg.Len())
	}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("sub-%d", i)
		res, ok := agg.Get(id)
		if !ok {
			t.Errorf("missing result for %s", id)
			continue
		}
		if wantFail := runner.failIDs[id]; wantFail == res.Success {
			t.Errorf("%s success = %v, want %v", id, res.Success, !wantFail)
		}
	}
	if st := o.State(); st.Completed != 10 || st.Active != 0 || st.Pending != 0 {
		t.Errorf("final state = %+v", st)
	}
}

func TestProcessHonorsConcurrencyCap(t *testing.T) {
	agg := aggregator.New()
	runner := &stubRunner{delay: 30 * time.Millisecond}
	o := New(Config{MaxConcurrent: 3, MinBatchSize: 12, MaxBatchSize: 12, WorkspaceDir: t.TempDir()},
		runner, agg, lowMem(), nil)

	drain(o.Process(context.Background(), submissions(12), domain.Expectations{}))

	if max := atomic.LoadInt32(&runner.maxActive); max > 3 {
		t.Errorf("max active runners = %d, cap is 3", max)
	}
	if agg.Len() != 12 {
		t.Errorf("results = %d, want 12", agg.Len())
	}
}

func TestProcessPanicIsolation(t *testing.T) {
	agg := aggregator.New()
	runner := &stubRunner{panicIDs: map[string]bool{"sub-1": true}}
	o := New(Config{MaxConcurrent: 2, MinBatchSize: 4, MaxBatchSize: 4, WorkspaceDir: t.TempDir()},
		runner, agg, lowMem(), nil)

	drain(o.Process(context.Background(), submissions(4), domain.Expectations{}))

	if agg.Len() != 4 {
		t.Fatalf("results = %d, want 4 (panic isolated to its submission)", agg.Len())
	}
	res, _ := agg.Get("sub-1")
	if res.Success {
		t.Error("panicked submission must fail")
	}
	other, _ := agg.Get("sub-0")
	if !other.Success {
		t.Error("panic in one submission must not fail its neighbors")
	}
}

func TestProcessStop(t *testing.T) {
	agg := aggregator.New()
	runner := &stubRunner{blockCtx: true}
	o := New(Config{MaxConcurrent: 2, MinBatchSize: 2, MaxBatchSize: 2, WorkspaceDir: t.TempDir()},
		runner, agg, lowMem(), nil)

	events := o.Process(context.Background(), submissions(8), domain.Expectations{})

	time.Sleep(50 * time.Millisecond)
	o.Stop()

	done := make(chan struct{})
	go func() { drain(events); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event channel did not close after Stop")
	}

	if agg.Len() >= 8 {
		t.Errorf("results = %d, expected the stop to leave pending submissions unprocessed", agg.Len())
	}
}

// Shrinking memory headroom must never grow the batch.
func TestNextBatchSizeMonotonicUnderPressure(t *testing.T) {
	used := 0.3
	var mu sync.Mutex
	sampler := samplerFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return used
	})
	o := New(Config{MaxConcurrent: 2, MinBatchSize: 1, MaxBatchSize: 32, DynamicSizing: true, MemHighWatermark: 0.8},
		&stubRunner{}, aggregator.New(), sampler, nil)

	size := 16
	for _, u := range []float64{0.5, 0.6, 0.7, 0.85, 0.9, 0.95} {
		mu.Lock()
		used = u
		mu.Unlock()
		next := o.nextBatchSize(size, time.Second)
		if next > size {
			t.Fatalf("batch size grew from %d to %d while pressure rose to %.2f", size, next, u)
		}
		size = next
	}
	if size < 1 {
		t.Fatalf("size fell below the floor: %d", size)
	}
}

func TestNextBatchSizeGrowsWhenIdle(t *testing.T) {
	o := New(Config{MaxConcurrent: 2, MinBatchSize: 1, MaxBatchSize: 8, DynamicSizing: true, MemHighWatermark: 0.8},
		&stubRunner{}, aggregator.New(), lowMem(), nil)

	next := o.nextBatchSize(4, time.Second)
	if next != 5 {
		t.Errorf("next = %d, want growth to 5 with low pressure and a fast batch", next)
	}
	if capped := o.nextBatchSize(8, time.Second); capped != 8 {
		t.Errorf("next = %d, growth must clamp at maxBatchSize", capped)
	}
}

func TestInitialBatchSize(t *testing.T) {
	o := New(Config{MaxConcurrent: 2, MinBatchSize: 2, MaxBatchSize: 10, DynamicSizing: true},
		&stubRunner{}, aggregator.New(), lowMem(), nil)
	if got := o.initialBatchSize(100); got != 10 {
		t.Errorf("initial for 100 = %d, want clamp to 10", got)
	}
	if got := o.initialBatchSize(4); got != 2 {
		t.Errorf("initial for 4 = %d, want floor 2", got)
	}

	fixed := New(Config{MaxConcurrent: 2, MinBatchSize: 2, MaxBatchSize: 10},
		&stubRunner{}, aggregator.New(), lowMem(), nil)
	if got := fixed.initialBatchSize(100); got != 10 {
		t.Errorf("static sizing should use maxBatchSize, got %d", got)
	}
}

func TestPublishAnnotatesActiveAndNeverBlocks(t *testing.T) {
	agg := aggregator.New()
	o := New(Config{MaxConcurrent: 1, MinBatchSize: 1, MaxBatchSize: 1}, &stubRunner{}, agg, lowMem(), nil)

	// No run in flight: publishing is a no-op.
	o.Publish(domain.ProgressEvent{SubmissionID: "x", Stage: domain.StageClone})

	events := o.Process(context.Background(), submissions(1), domain.Expectations{})
	for i := 0; i < 1000; i++ {
		o.Publish(domain.ProgressEvent{SubmissionID: "x", Stage: domain.StageClone, Status: "started"})
	}
	drain(events)
}
