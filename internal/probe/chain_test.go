package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type fakeStrategy struct {
	id    domain.StrategyID
	out   *domain.ProbeOutcome
	err   error
	calls int
}

func (f *fakeStrategy) ID() domain.StrategyID { return f.id }

func (f *fakeStrategy) Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) (*domain.ProbeOutcome, error) {
	f.calls++
	return f.out, f.err
}

func chainInstance() *domain.RunningInstance {
	return domain.NewRunningInstance("sub-9", "http://localhost:3000", 3000, nil)
}

// Primary engine crashes outright; the fallback completes with a working
// button and wins, carrying its own strategy id.
func TestChainFallbackOnOutrightFailure(t *testing.T) {
	primary := &fakeStrategy{id: domain.StrategyBrowser, err: errors.New("browser crashed")}
	fallback := &fakeStrategy{
		id: domain.StrategyHTTPDOM,
		out: &domain.ProbeOutcome{
			Strategy: domain.StrategyHTTPDOM,
			Elements: []domain.ElementCandidate{
				{Role: domain.RoleButton, Selector: "button:nth-of-type(1)", Confidence: 0.85, Signals: []string{"text:send"}},
			},
			Attempted: 1,
			Succeeded: 1,
			SubScores: domain.SubScores{AppLoads: maxAppLoads, Buttons: maxButtons},
		},
	}

	chain := NewChain(nil, primary, fallback)
	res := chain.Run(context.Background(), chainInstance(), domain.Expectations{HasButtons: true})

	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("calls = %d/%d, want both strategies tried once", primary.calls, fallback.calls)
	}
	if !res.Success {
		t.Error("fallback completion should count as success")
	}
	if res.Strategy != domain.StrategyHTTPDOM {
		t.Errorf("strategy = %s, want the fallback's id", res.Strategy)
	}
	if !res.Degraded {
		t.Error("winning on a fallback engine is degraded")
	}
}

func TestChainFirstCompletedWins(t *testing.T) {
	primary := &fakeStrategy{
		id: domain.StrategyBrowser,
		out: &domain.ProbeOutcome{
			Strategy:  domain.StrategyBrowser,
			SubScores: domain.SubScores{AppLoads: maxAppLoads},
		},
	}
	fallback := &fakeStrategy{id: domain.StrategyHTTPDOM}

	chain := NewChain(nil, primary, fallback)
	res := chain.Run(context.Background(), chainInstance(), domain.Expectations{})

	if fallback.calls != 0 {
		t.Error("fallback must not run after a completed outcome")
	}
	if res.Strategy != domain.StrategyBrowser || !res.Success || res.Degraded {
		t.Errorf("result = %+v, want clean primary success", res)
	}
}

func TestChainPartialOutcomeStillWins(t *testing.T) {
	primary := &fakeStrategy{
		id: domain.StrategyBrowser,
		out: &domain.ProbeOutcome{
			Strategy:  domain.StrategyBrowser,
			Attempted: 3,
			Succeeded: 1,
			Errors:    []string{"click #b1: no observable reaction"},
			SubScores: domain.SubScores{AppLoads: maxAppLoads, Buttons: maxButtons / 2},
		},
	}
	fallback := &fakeStrategy{id: domain.StrategyHTTPDOM}

	chain := NewChain(nil, primary, fallback)
	res := chain.Run(context.Background(), chainInstance(), domain.Expectations{})

	if fallback.calls != 0 {
		t.Error("partial outcome must not trigger fallback")
	}
	if !res.Success || !res.Degraded {
		t.Errorf("partial outcome should be degraded success, got %+v", res)
	}
	if res.Cause == "" {
		t.Error("degraded result should carry the last recorded error as cause")
	}
}

func TestChainAllFailOutright(t *testing.T) {
	s1 := &fakeStrategy{id: domain.StrategyBrowser, err: errors.New("no chrome")}
	s2 := &fakeStrategy{id: domain.StrategyHTTPDOM, err: errors.New("connection refused")}

	chain := NewChain(nil, s1, s2)
	res := chain.Run(context.Background(), chainInstance(), domain.Expectations{})

	if res.Success || res.Degraded {
		t.Errorf("result = %+v, want outright failure", res)
	}
	if res.Cause != "connection refused" {
		t.Errorf("cause = %q, want the last strategy's failure reason", res.Cause)
	}
}

func TestChainMissingExpectedRoleDegrades(t *testing.T) {
	primary := &fakeStrategy{
		id: domain.StrategyBrowser,
		out: &domain.ProbeOutcome{
			Strategy:  domain.StrategyBrowser,
			SubScores: domain.SubScores{AppLoads: maxAppLoads},
		},
	}
	chain := NewChain(nil, primary)
	res := chain.Run(context.Background(), chainInstance(), domain.Expectations{HasForm: true})
	if !res.Degraded {
		t.Error("completing without an expected role should degrade the result")
	}
}

func TestChainCancelledContext(t *testing.T) {
	s1 := &fakeStrategy{id: domain.StrategyBrowser}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewChain(nil, s1).Run(ctx, chainInstance(), domain.Expectations{})
	if s1.calls != 0 {
		t.Error("cancelled context must not start strategies")
	}
	if res.Success {
		t.Error("cancelled run cannot succeed")
	}
}

func TestDefaultChainOrder(t *testing.T) {
	c := DefaultChain("browser", true, nil)
	if len(c.strategies) != 3 {
		t.Fatalf("browser ladder length = %d, want 3", len(c.strategies))
	}
	want := []domain.StrategyID{domain.StrategyBrowser, domain.StrategyHTTPDOM, domain.StrategyStatic}
	for i, s := range c.strategies {
		if s.ID() != want[i] {
			t.Errorf("rung %d = %s, want %s", i, s.ID(), want[i])
		}
	}

	c = DefaultChain("httpdom", true, nil)
	if len(c.strategies) != 2 || c.strategies[0].ID() != domain.StrategyHTTPDOM {
		t.Fatalf("httpdom ladder = %d rungs, first %s", len(c.strategies), c.strategies[0].ID())
	}

	c = DefaultChain("browser", false, nil)
	if len(c.strategies) != 1 {
		t.Fatalf("fallback disabled should leave only the primary, got %d", len(c.strategies))
	}
}
