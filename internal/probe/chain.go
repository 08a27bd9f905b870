package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// Chain runs strategies strictly in order, advancing only on outright
// failure. The first completed outcome wins, whether full or partial.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// DefaultChain builds the standard ladder from config. With fallback
// disabled only the primary engine runs.
func DefaultChain(primaryEngine string, fallbackEnabled bool, logger *slog.Logger) *Chain {
	var order []Strategy
	switch primaryEngine {
	case "httpdom":
		order = []Strategy{NewHTTPDOM(logger), NewStatic(logger)}
	default:
		order = []Strategy{NewBrowser(logger), NewHTTPDOM(logger), NewStatic(logger)}
	}
	if !fallbackEnabled {
		order = order[:1]
	}
	return NewChain(logger, order...)
}

func (c *Chain) Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) *domain.FunctionalResult {
	start := time.Now()
	var lastErr error

	for i, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		out, err := s.Run(ctx, inst, exp)
		if err != nil {
			lastErr = err
			c.logger.Warn("probe strategy failed outright",
				"submission", inst.SubmissionID, "strategy", s.ID(), "err", err)
			if i < len(c.strategies)-1 {
				metrics.StrategyFallbacksTotal.WithLabelValues(string(s.ID())).Inc()
			}
			continue
		}
		return c.resultFrom(inst, exp, out, i, start)
	}

	cause := "all probe strategies failed outright"
	if lastErr != nil {
		cause = lastErr.Error()
	}
	return &domain.FunctionalResult{
		SubmissionID: inst.SubmissionID,
		Success:      false,
		Cause:        cause,
		Elapsed:      time.Since(start),
		CompletedAt:  time.Now(),
	}
}

func (c *Chain) resultFrom(inst *domain.RunningInstance, exp domain.Expectations, out *domain.ProbeOutcome, idx int, start time.Time) *domain.FunctionalResult {
	degraded := idx > 0 ||
		out.Succeeded < out.Attempted ||
		missingExpectedRole(out, exp)

	res := &domain.FunctionalResult{
		SubmissionID: inst.SubmissionID,
		Strategy:     out.Strategy,
		Success:      out.SubScores.AppLoads > 0,
		Degraded:     degraded,
		Score:        out.SubScores.Total(),
		SubScores:    out.SubScores,
		Outcome:      out,
		Elapsed:      time.Since(start),
		CompletedAt:  time.Now(),
	}
	if degraded && len(out.Errors) > 0 {
		res.Cause = out.Errors[len(out.Errors)-1]
	}
	return res
}

func missingExpectedRole(out *domain.ProbeOutcome, exp domain.Expectations) bool {
	present := map[domain.ElementRole]bool{}
	for _, e := range out.Elements {
		present[e.Role] = true
	}
	if exp.HasForm && !present[domain.RoleForm] {
		return true
	}
	if exp.HasButtons && !present[domain.RoleButton] {
		return true
	}
	if exp.HasNavigation && !present[domain.RoleLink] {
		return true
	}
	return false
}
