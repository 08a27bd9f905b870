package domain

import "time"

type Stage string

const (
	StageClone    Stage = "clone"
	StageBuild    Stage = "build"
	StageStart    Stage = "start"
	StageProbe    Stage = "probe"
	StageTeardown Stage = "teardown"
)

// ProgressEvent is emitted by submission runners as they enter and leave
// stages. Consumed by the orchestrator for live status and by reporting.
type ProgressEvent struct {
	SubmissionID string        `json:"submissionId"`
	Student      string        `json:"student,omitempty"`
	Stage        Stage         `json:"stage"`
	Status       string        `json:"status"` // started | completed | failed
	Elapsed      time.Duration `json:"elapsedNs"`
	Active       int           `json:"active,omitempty"`
	At           time.Time     `json:"at"`
}

// BatchState is the orchestrator-owned view of one grading run. It is mutated
// only by the orchestrator; workers communicate through channels.
type BatchState struct {
	Active      int     `json:"active"`
	Completed   int     `json:"completed"`
	Pending     int     `json:"pending"`
	BatchSize   int     `json:"batchSize"`
	MemPressure float64 `json:"memPressure"` // used-memory fraction, 0..1
}
