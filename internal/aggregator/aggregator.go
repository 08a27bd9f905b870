package aggregator

import (
	"fmt"
	"sync"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// Aggregator accumulates per-submission results for one grading run. The
// view is stable in insertion order; replacing a result keeps its original
// position.
type Aggregator struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*domain.FunctionalResult
}

func New() *Aggregator {
	return &Aggregator{byID: map[string]*domain.FunctionalResult{}}
}

// Add inserts a result for a submission seen for the first time. A second
// Add for the same id means two runners produced terminal results for one
// submission, which the orchestrator guarantees never happens.
func (a *Aggregator) Add(res *domain.FunctionalResult) error {
	if res == nil || res.SubmissionID == "" {
		return fmt.Errorf("aggregator: result without submission id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[res.SubmissionID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateResult, res.SubmissionID)
	}
	a.order = append(a.order, res.SubmissionID)
	a.byID[res.SubmissionID] = res
	return nil
}

// Put replaces any earlier result for the submission in place. Used when a
// submission is deliberately re-run.
func (a *Aggregator) Put(res *domain.FunctionalResult) error {
	if res == nil || res.SubmissionID == "" {
		return fmt.Errorf("aggregator: result without submission id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[res.SubmissionID]; !ok {
		a.order = append(a.order, res.SubmissionID)
	}
	a.byID[res.SubmissionID] = res
	return nil
}

func (a *Aggregator) Get(submissionID string) (*domain.FunctionalResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res, ok := a.byID[submissionID]
	return res, ok
}

// Results returns the accumulated results in insertion order.
func (a *Aggregator) Results() []*domain.FunctionalResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*domain.FunctionalResult, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// Summary rolls the run up into status counts and mean scores.
func (a *Aggregator) Summary() domain.RunSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sum := domain.RunSummary{
		Total:    len(a.order),
		ByStatus: map[domain.SubmissionStatus]int{},
	}
	if sum.Total == 0 {
		return sum
	}

	var scoreTotal int
	var sub domain.SubScores
	for _, id := range a.order {
		res := a.byID[id]
		sum.ByStatus[res.TerminalStatus()]++
		scoreTotal += res.Score
		sub.AppLoads += res.SubScores.AppLoads
		sub.Renders += res.SubScores.Renders
		sub.Buttons += res.SubScores.Buttons
		sub.Navigation += res.SubScores.Navigation
		sub.Forms += res.SubScores.Forms
		sub.Requirements += res.SubScores.Requirements
	}
	n := sum.Total
	sum.MeanScore = float64(scoreTotal) / float64(n)
	sum.MeanSub = domain.SubScores{
		AppLoads:     sub.AppLoads / n,
		Renders:      sub.Renders / n,
		Buttons:      sub.Buttons / n,
		Navigation:   sub.Navigation / n,
		Forms:        sub.Forms / n,
		Requirements: sub.Requirements / n,
	}
	return sum
}
