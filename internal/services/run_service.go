package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/osvaldoandrade/gradeq/internal/aggregator"
	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var ErrRunNotActive = errors.New("run is not active in this process")

// ActiveRun is the live handle the report API holds on an in-process
// grading run.
type ActiveRun interface {
	State() domain.BatchState
	Stop()
}

type RunService interface {
	Results(ctx context.Context, runID string) ([]*domain.FunctionalResult, error)
	Result(ctx context.Context, runID, submissionID string) (*domain.FunctionalResult, error)
	Summary(ctx context.Context, runID string) (domain.RunSummary, error)
	Progress(ctx context.Context, runID string) (domain.BatchState, error)
	Cancel(ctx context.Context, runID string) error

	Register(runID string, run ActiveRun)
	Deregister(runID string)
}

type runService struct {
	repo   repository.ResultRepository
	logger *slog.Logger

	mu     sync.RWMutex
	active map[string]ActiveRun
}

func NewRunService(repo repository.ResultRepository, logger *slog.Logger) RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &runService{repo: repo, logger: logger, active: map[string]ActiveRun{}}
}

func (s *runService) Register(runID string, run ActiveRun) {
	s.mu.Lock()
	s.active[runID] = run
	s.mu.Unlock()
}

func (s *runService) Deregister(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

func (s *runService) liveRun(runID string) (ActiveRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.active[runID]
	return run, ok
}

func (s *runService) Results(ctx context.Context, runID string) ([]*domain.FunctionalResult, error) {
	return s.repo.ListResults(ctx, runID)
}

func (s *runService) Result(ctx context.Context, runID, submissionID string) (*domain.FunctionalResult, error) {
	return s.repo.GetResult(ctx, runID, submissionID)
}

func (s *runService) Summary(ctx context.Context, runID string) (domain.RunSummary, error) {
	ctx, span := otel.Tracer("gradeq/runs").Start(ctx, "gradeq.run.summary")
	span.SetAttributes(attribute.String("gradeq.run_id", runID))
	defer span.End()

	results, err := s.repo.ListResults(ctx, runID)
	if err != nil {
		return domain.RunSummary{}, err
	}
	agg := aggregator.New()
	for _, r := range results {
		if err := agg.Put(r); err != nil {
			return domain.RunSummary{}, err
		}
	}
	return agg.Summary(), nil
}

// Progress prefers the live orchestrator state when the run is in this
// process and falls back to the last persisted snapshot.
func (s *runService) Progress(ctx context.Context, runID string) (domain.BatchState, error) {
	if run, ok := s.liveRun(runID); ok {
		return run.State(), nil
	}
	return s.repo.GetState(ctx, runID)
}

func (s *runService) Cancel(ctx context.Context, runID string) error {
	run, ok := s.liveRun(runID)
	if !ok {
		return ErrRunNotActive
	}
	s.logger.Info("run cancel requested", "run", runID)
	run.Stop()
	return nil
}
