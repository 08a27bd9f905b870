package domain

import (
	"sync"
	"time"
)

// RunningInstance is a live, locally started build of a student's application
// under test. It is exclusively owned by the submission runner that started it.
type RunningInstance struct {
	SubmissionID string    `json:"submissionId"`
	BaseURL      string    `json:"baseUrl"`
	Port         int       `json:"port"`
	StartedAt    time.Time `json:"startedAt"`

	stop     func() error
	stopOnce sync.Once
}

// NewRunningInstance wires the teardown closure supplied by the build
// collaborator. stop may be nil for instances that need no teardown (tests).
func NewRunningInstance(submissionID, baseURL string, port int, stop func() error) *RunningInstance {
	return &RunningInstance{
		SubmissionID: submissionID,
		BaseURL:      baseURL,
		Port:         port,
		StartedAt:    time.Now(),
		stop:         stop,
	}
}

// Stop tears the instance down exactly once. Stopping an already-stopped
// instance is a no-op.
func (ri *RunningInstance) Stop() error {
	var err error
	ri.stopOnce.Do(func() {
		if ri.stop != nil {
			err = ri.stop()
		}
	})
	return err
}
