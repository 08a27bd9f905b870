package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type memoryRun struct {
	order []string
	byID  map[string]*domain.FunctionalResult
	state *domain.BatchState
}

type memoryRepo struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

// NewMemoryRepository is the embedded store for single-process runs and tests.
func NewMemoryRepository() ResultRepository {
	return &memoryRepo{runs: map[string]*memoryRun{}}
}

func (m *memoryRepo) run(runID string) *memoryRun {
	r, ok := m.runs[runID]
	if !ok {
		r = &memoryRun{byID: map[string]*domain.FunctionalResult{}}
		m.runs[runID] = r
	}
	return r
}

func (m *memoryRepo) SaveResult(ctx context.Context, runID string, res *domain.FunctionalResult) error {
	if res == nil || res.SubmissionID == "" {
		return fmt.Errorf("result without submission id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.run(runID)
	if _, ok := r.byID[res.SubmissionID]; !ok {
		r.order = append(r.order, res.SubmissionID)
	}
	cp := *res
	r.byID[res.SubmissionID] = &cp
	return nil
}

func (m *memoryRepo) GetResult(ctx context.Context, runID, submissionID string) (*domain.FunctionalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	res, ok := r.byID[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *memoryRepo) ListResults(ctx context.Context, runID string) ([]*domain.FunctionalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	out := make([]*domain.FunctionalResult, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryRepo) SaveState(ctx context.Context, runID string, st domain.BatchState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.run(runID).state = &st
	return nil
}

func (m *memoryRepo) GetState(ctx context.Context, runID string) (domain.BatchState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok || r.state == nil {
		return domain.BatchState{}, ErrNotFound
	}
	return *r.state, nil
}
