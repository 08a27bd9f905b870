package probe

import (
	"context"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// Strategy is one automation technique for exercising a running instance.
// The error return is reserved for outright failure (page unreachable, engine
// unavailable, fatal engine error); partial discovery returns a non-nil
// outcome and a nil error.
type Strategy interface {
	ID() domain.StrategyID
	Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) (*domain.ProbeOutcome, error)
}

// Sub-score ceilings. The components sum to 100; domain.SubScores.Total
// clamps anyway.
const (
	maxAppLoads     = 20
	maxRenders      = 15
	maxButtons      = 20
	maxNavigation   = 20
	maxForms        = 15
	maxRequirements = 10
)

const evidenceLimit = 2048

// truncateEvidence bounds captured page HTML so outcomes stay storable.
func truncateEvidence(s string) string {
	if len(s) <= evidenceLimit {
		return s
	}
	return s[:evidenceLimit] + "...[truncated]"
}

// scaleScore maps got/want onto a 0..max sub-score.
func scaleScore(max, got, want int) int {
	if want <= 0 {
		return 0
	}
	if got >= want {
		return max
	}
	if got <= 0 {
		return 0
	}
	return max * got / want
}
