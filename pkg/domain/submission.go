package domain

import (
	"encoding"
	"time"
)

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusCloning  SubmissionStatus = "CLONING"
	StatusBuilding SubmissionStatus = "BUILDING"
	StatusTesting  SubmissionStatus = "TESTING"

	// Terminal statuses. A submission reaches exactly one of these before
	// its resources are released.
	StatusSucceeded SubmissionStatus = "SUCCEEDED"
	StatusDegraded  SubmissionStatus = "DEGRADED"
	StatusFailed    SubmissionStatus = "FAILED"
)

func (s SubmissionStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDegraded, StatusFailed:
		return true
	}
	return false
}

var (
	_ encoding.BinaryMarshaler = SubmissionStatus("")
	_ encoding.TextMarshaler   = SubmissionStatus("")
)

func (s SubmissionStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s SubmissionStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// Submission is one student project moving through clone → build → test → result.
type Submission struct {
	ID      string `json:"id"`
	Student string `json:"student,omitempty"`
	RepoURL string `json:"repoUrl"`
	// LocalPath is set once the repository has been cloned into the run workspace.
	LocalPath string `json:"localPath,omitempty"`
	// ArtifactRef points at the built output (e.g. build/ dir); empty until built.
	ArtifactRef string           `json:"artifactRef,omitempty"`
	Status      SubmissionStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
