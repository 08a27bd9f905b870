package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/osvaldoandrade/gradeq/internal/aggregator"
	"github.com/osvaldoandrade/gradeq/internal/collab"
	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/internal/ratelimit"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// SubmissionRunner is what the orchestrator needs from the per-submission
// pipeline.
type SubmissionRunner interface {
	Run(ctx context.Context, sub *domain.Submission, exp domain.Expectations) *domain.FunctionalResult
}

type Config struct {
	MaxConcurrent    int
	DynamicSizing    bool
	MinBatchSize     int
	MaxBatchSize     int
	MemHighWatermark float64
	WorkspaceDir     string
	StartBucket      ratelimit.Bucket
}

// A batch faster than this on average is a signal the host has headroom to
// grow the next one.
const fastBatchMean = 30 * time.Second

// Orchestrator fans submissions out to a bounded worker pool, batch by
// batch, reclaiming resources between batches. It owns the BatchState;
// workers only report back through channels.
type Orchestrator struct {
	cfg     Config
	runner  SubmissionRunner
	agg     *aggregator.Aggregator
	mem     MemorySampler
	limiter ratelimit.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	state  domain.BatchState
	events chan domain.ProgressEvent
	cancel context.CancelFunc
}

func New(cfg Config, runner SubmissionRunner, agg *aggregator.Aggregator, mem MemorySampler, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if mem == nil {
		mem = NewHostMemory()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 1
	}
	if cfg.MaxBatchSize < cfg.MinBatchSize {
		cfg.MaxBatchSize = cfg.MinBatchSize
	}
	if cfg.MemHighWatermark <= 0 || cfg.MemHighWatermark > 1 {
		cfg.MemHighWatermark = 0.85
	}
	return &Orchestrator{
		cfg:     cfg,
		runner:  runner,
		agg:     agg,
		mem:     mem,
		limiter: ratelimit.NewTokenBucketLimiter(cfg.StartBucket),
		logger:  logger,
	}
}

// Process grades every submission and closes the returned channel when the
// run is over. One submission's failure never aborts the batch; cancelling
// ctx stops dispatch and lets in-flight runners finish their teardown path.
func (o *Orchestrator) Process(ctx context.Context, subs []*domain.Submission, exp domain.Expectations) <-chan domain.ProgressEvent {
	events := make(chan domain.ProgressEvent, 256)
	go o.run(ctx, subs, exp, events)
	return events
}

// Stop requests a graceful stop of the current run.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns a snapshot of the current run.
func (o *Orchestrator) State() domain.BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Publish is the progress sink handed to runners. Events are annotated with
// the live worker count and never block the pipeline; under backpressure
// they are dropped.
func (o *Orchestrator) Publish(e domain.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		return
	}
	e.Active = o.state.Active
	select {
	case o.events <- e:
	default:
	}
}

func (o *Orchestrator) run(ctx context.Context, subs []*domain.Submission, exp domain.Expectations, events chan domain.ProgressEvent) {
	cctx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.cancel = cancel
	o.events = events
	o.state = domain.BatchState{Pending: len(subs)}
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.events = nil
		o.cancel = nil
		o.mu.Unlock()
		close(events)
	}()

	batchSize := o.initialBatchSize(len(subs))
	pending := subs

	for len(pending) > 0 && cctx.Err() == nil {
		n := batchSize
		if n > len(pending) {
			n = len(pending)
		}
		batch := pending[:n]
		pending = pending[n:]

		o.mu.Lock()
		o.state.BatchSize = batchSize
		o.state.Pending = len(pending)
		o.mu.Unlock()
		metrics.BatchSize.Set(float64(batchSize))

		mean := o.runBatch(cctx, batch, exp)
		o.reclaim()

		if o.cfg.DynamicSizing {
			batchSize = o.nextBatchSize(batchSize, mean)
		}
	}

	if err := cctx.Err(); err != nil {
		o.logger.Info("run stopped before completion",
			"pending", len(pending), "completed", o.State().Completed)
	}
}

func (o *Orchestrator) runBatch(ctx context.Context, batch []*domain.Submission, exp domain.Expectations) time.Duration {
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	durations := make(chan time.Duration, len(batch))
	var wg sync.WaitGroup

	for _, sub := range batch {
		if ctx.Err() != nil {
			break
		}
		// Pace dispatch so instance starts don't stampede the host.
		if err := o.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(sub *domain.Submission) {
			defer wg.Done()
			defer func() { <-sem }()

			o.adjustActive(+1)
			start := time.Now()
			res := o.runOne(ctx, sub, exp)
			durations <- time.Since(start)
			o.adjustActive(-1)
			o.markCompleted()

			if err := o.agg.Add(res); err != nil {
				o.logger.Error("result invariant violated", "submission", sub.ID, "err", err)
			}
		}(sub)
	}

	wg.Wait()
	close(durations)

	var total time.Duration
	var n int
	for d := range durations {
		total += d
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// runOne isolates a single submission: a panic inside its pipeline becomes a
// failed result instead of taking the batch down.
func (o *Orchestrator) runOne(ctx context.Context, sub *domain.Submission, exp domain.Expectations) (res *domain.FunctionalResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("runner panicked", "submission", sub.ID, "panic", r)
			sub.Status = domain.StatusFailed
			res = &domain.FunctionalResult{
				SubmissionID: sub.ID,
				Student:      sub.Student,
				Success:      false,
				Cause:        fmt.Sprintf("internal error: %v", r),
				CompletedAt:  time.Now(),
			}
		}
	}()
	return o.runner.Run(ctx, sub, exp)
}

// reclaim frees what the finished batch left behind before the next one
// starts: workspace clones, per-batch allocations, OS pages.
func (o *Orchestrator) reclaim() {
	if o.cfg.WorkspaceDir != "" {
		if err := collab.CleanupWorkspace(o.cfg.WorkspaceDir); err != nil {
			o.logger.Warn("workspace cleanup", "err", err)
		}
	}
	runtime.GC()
	debug.FreeOSMemory()

	used := o.mem.UsedFraction()
	o.mu.Lock()
	o.state.MemPressure = used
	o.mu.Unlock()
}

func (o *Orchestrator) initialBatchSize(total int) int {
	size := total
	if o.cfg.DynamicSizing {
		size = total / 4
	}
	return clamp(size, o.cfg.MinBatchSize, o.cfg.MaxBatchSize)
}

// nextBatchSize shrinks while memory pressure is at or above the watermark
// and grows only when the host is comfortably idle and the previous batch
// was fast. Under monotonically rising pressure the size never grows.
func (o *Orchestrator) nextBatchSize(cur int, prevMean time.Duration) int {
	used := o.mem.UsedFraction()
	next := cur
	switch {
	case used >= o.cfg.MemHighWatermark:
		next = cur / 2
	case used < o.cfg.MemHighWatermark*0.6 && prevMean > 0 && prevMean < fastBatchMean:
		next = cur + 1
	}
	next = clamp(next, o.cfg.MinBatchSize, o.cfg.MaxBatchSize)
	if next != cur {
		o.logger.Info("batch size adjusted", "from", cur, "to", next, "memUsed", used)
	}
	return next
}

func (o *Orchestrator) adjustActive(delta int) {
	o.mu.Lock()
	o.state.Active += delta
	o.mu.Unlock()
}

func (o *Orchestrator) markCompleted() {
	o.mu.Lock()
	o.state.Completed++
	o.mu.Unlock()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
