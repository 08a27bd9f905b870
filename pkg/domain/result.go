package domain

import "time"

// FunctionalResult is the single per-submission verdict produced by the
// strategy chain and consumed by the aggregator and reporting.
type FunctionalResult struct {
	SubmissionID string     `json:"submissionId"`
	Student      string     `json:"student,omitempty"`
	Strategy     StrategyID `json:"strategy,omitempty"`
	Success      bool       `json:"success"`
	// Degraded is set when the winning strategy completed with reduced
	// confidence (missing expected roles, failed interactions).
	Degraded    bool          `json:"degraded"`
	Score       int           `json:"score"`
	SubScores   SubScores     `json:"subScores"`
	Cause       string        `json:"cause,omitempty"`
	Outcome     *ProbeOutcome `json:"outcome,omitempty"`
	Elapsed     time.Duration `json:"elapsedNs"`
	CompletedAt time.Time     `json:"completedAt"`
}

// TerminalStatus maps the result onto the submission status machine.
func (r *FunctionalResult) TerminalStatus() SubmissionStatus {
	switch {
	case r.Success && !r.Degraded:
		return StatusSucceeded
	case r.Success || r.Degraded:
		return StatusDegraded
	default:
		return StatusFailed
	}
}

// RunSummary is the class-level rollup exposed by the aggregator.
type RunSummary struct {
	Total     int                      `json:"total"`
	ByStatus  map[SubmissionStatus]int `json:"byStatus"`
	MeanScore float64                  `json:"meanScore"`
	MeanSub   SubScores                `json:"meanSubScores"`
}
