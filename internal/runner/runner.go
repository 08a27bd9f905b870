package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/osvaldoandrade/gradeq/internal/collab"
	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// ProbeChain is what the runner needs from the strategy chain.
type ProbeChain interface {
	Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) *domain.FunctionalResult
}

type Config struct {
	WorkspaceDir string
	CloneTimeout time.Duration
	BuildTimeout time.Duration
	StartTimeout time.Duration
	TestTimeout  time.Duration
}

// Runner drives one submission through the full pipeline. A stage failure
// short-circuits to a terminal failed result; teardown of a started instance
// runs on every exit path, and Stop itself is idempotent so a second
// teardown from any direction is harmless.
type Runner struct {
	cfg     Config
	cloner  collab.Cloner
	builder collab.Builder
	chain   ProbeChain
	sink    func(domain.ProgressEvent)
	logger  *slog.Logger
}

func New(cfg Config, cloner collab.Cloner, builder collab.Builder, chain ProbeChain, sink func(domain.ProgressEvent), logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = func(domain.ProgressEvent) {}
	}
	return &Runner{cfg: cfg, cloner: cloner, builder: builder, chain: chain, sink: sink, logger: logger}
}

func (r *Runner) Run(ctx context.Context, sub *domain.Submission, exp domain.Expectations) *domain.FunctionalResult {
	pipelineStart := time.Now()

	r.setStatus(sub, domain.StatusCloning)
	path, err := runStage(r, ctx, sub, domain.StageClone, r.cfg.CloneTimeout, func(sctx context.Context) (string, error) {
		return r.cloner.Clone(sctx, sub.RepoURL, filepath.Join(r.cfg.WorkspaceDir, sub.ID))
	})
	if err != nil {
		return r.fail(sub, domain.StageClone, err, pipelineStart)
	}
	sub.LocalPath = path

	r.setStatus(sub, domain.StatusBuilding)
	_, err = runStage(r, ctx, sub, domain.StageBuild, r.cfg.BuildTimeout, func(sctx context.Context) (collab.BuildResult, error) {
		return r.builder.InstallAndBuild(sctx, path)
	})
	if err != nil {
		return r.fail(sub, domain.StageBuild, err, pipelineStart)
	}

	inst, err := runStage(r, ctx, sub, domain.StageStart, r.cfg.StartTimeout, func(sctx context.Context) (*domain.RunningInstance, error) {
		return r.builder.Start(sctx, sub.ID, path)
	})
	if err != nil {
		return r.fail(sub, domain.StageStart, err, pipelineStart)
	}
	metrics.OpenInstances.Inc()
	defer r.teardown(sub, inst)

	r.setStatus(sub, domain.StatusTesting)
	probeStart := time.Now()
	r.emit(sub, domain.StageProbe, "started", 0)
	tctx, cancel := context.WithTimeout(ctx, r.cfg.TestTimeout)
	res := r.chain.Run(tctx, inst, exp)
	timedOut := tctx.Err() != nil
	cancel()
	metrics.StageLatencySeconds.WithLabelValues(string(domain.StageProbe)).Observe(time.Since(probeStart).Seconds())

	res.SubmissionID = sub.ID
	res.Student = sub.Student
	res.Elapsed = time.Since(pipelineStart)
	if !res.Success && timedOut {
		res.Cause = fmt.Sprintf("%v: %s", domain.ErrProbeTimeout, res.Cause)
	}

	if res.Success || res.Degraded {
		r.emit(sub, domain.StageProbe, "completed", time.Since(probeStart))
	} else {
		metrics.StageFailuresTotal.WithLabelValues(string(domain.StageProbe)).Inc()
		r.emit(sub, domain.StageProbe, "failed", time.Since(probeStart))
	}

	r.setStatus(sub, res.TerminalStatus())
	sub.Error = res.Cause
	metrics.SubmissionsProcessedTotal.WithLabelValues(string(sub.Status)).Inc()
	return res
}

// runStage executes one stage under its timeout, emitting progress events and
// recording stage latency.
func runStage[T any](r *Runner, ctx context.Context, sub *domain.Submission, stage domain.Stage, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	r.emit(sub, stage, "started", 0)

	sctx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
	}
	v, err := fn(sctx)
	cancel()

	elapsed := time.Since(start)
	metrics.StageLatencySeconds.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues(string(stage)).Inc()
		r.emit(sub, stage, "failed", elapsed)
		return v, err
	}
	r.emit(sub, stage, "completed", elapsed)
	return v, nil
}

func (r *Runner) fail(sub *domain.Submission, stage domain.Stage, err error, pipelineStart time.Time) *domain.FunctionalResult {
	stageErr := domain.NewStageError(stage, err)
	r.logger.Warn("submission failed", "submission", sub.ID, "stage", stage, "err", err)

	r.setStatus(sub, domain.StatusFailed)
	sub.Error = stageErr.Error()
	metrics.SubmissionsProcessedTotal.WithLabelValues(string(domain.StatusFailed)).Inc()

	return &domain.FunctionalResult{
		SubmissionID: sub.ID,
		Student:      sub.Student,
		Success:      false,
		Cause:        stageErr.Error(),
		Elapsed:      time.Since(pipelineStart),
		CompletedAt:  time.Now(),
	}
}

func (r *Runner) teardown(sub *domain.Submission, inst *domain.RunningInstance) {
	start := time.Now()
	r.emit(sub, domain.StageTeardown, "started", 0)
	if err := inst.Stop(); err != nil {
		r.logger.Warn("instance teardown", "submission", sub.ID, "err", err)
		r.emit(sub, domain.StageTeardown, "failed", time.Since(start))
	} else {
		r.emit(sub, domain.StageTeardown, "completed", time.Since(start))
	}
	metrics.OpenInstances.Dec()
	metrics.StageLatencySeconds.WithLabelValues(string(domain.StageTeardown)).Observe(time.Since(start).Seconds())
}

func (r *Runner) setStatus(sub *domain.Submission, status domain.SubmissionStatus) {
	sub.Status = status
	sub.UpdatedAt = time.Now()
}

func (r *Runner) emit(sub *domain.Submission, stage domain.Stage, status string, elapsed time.Duration) {
	r.sink(domain.ProgressEvent{
		SubmissionID: sub.ID,
		Student:      sub.Student,
		Stage:        stage,
		Status:       status,
		Elapsed:      elapsed,
		At:           time.Now(),
	})
}
