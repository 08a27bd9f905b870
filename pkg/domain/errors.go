package domain

import (
	"errors"
	"fmt"
)

// Stage failures are terminal for a submission but never fatal for the
// batch. Interaction failures inside a probe are recorded in the outcome and
// never surface as errors.
var (
	ErrCloneFailed       = errors.New("repository clone failed")
	ErrBuildFailed       = errors.New("install or build failed")
	ErrInstanceStart     = errors.New("instance failed to start")
	ErrEngineUnavailable = errors.New("probe engine unavailable")
	ErrProbeTimeout      = errors.New("probe timed out")

	// ErrDuplicateResult indicates an aggregator invariant violation and is a
	// programming error, not an operational condition.
	ErrDuplicateResult = errors.New("duplicate submission id in aggregator")
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }
