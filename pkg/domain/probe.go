package domain

import "encoding"

type StrategyID string

const (
	StrategyBrowser StrategyID = "browser"
	StrategyHTTPDOM StrategyID = "httpdom"
	StrategyStatic  StrategyID = "static"
)

var (
	_ encoding.BinaryMarshaler = StrategyID("")
	_ encoding.TextMarshaler   = StrategyID("")
)

func (s StrategyID) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s StrategyID) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

type ElementRole string

const (
	RoleForm   ElementRole = "form"
	RoleField  ElementRole = "field"
	RoleButton ElementRole = "button"
	RoleLink   ElementRole = "link"
)

// ElementCandidate is a discovered UI element with the signals that matched
// it. Candidates are ephemeral: produced and consumed within a single probe
// strategy invocation.
type ElementCandidate struct {
	Role       ElementRole `json:"role"`
	Selector   string      `json:"selector"`
	Confidence float64     `json:"confidence"`
	Signals    []string    `json:"signals,omitempty"`
}

// SubScores mirrors the functional checks the probe performs. Each component
// is on its own scale; Total clamps the sum to 0-100.
type SubScores struct {
	AppLoads     int `json:"appLoads"`
	Renders      int `json:"componentsRender"`
	Buttons      int `json:"buttons"`
	Navigation   int `json:"navigation"`
	Forms        int `json:"forms"`
	Requirements int `json:"requirements"`
}

func (s SubScores) Total() int {
	t := s.AppLoads + s.Renders + s.Buttons + s.Navigation + s.Forms + s.Requirements
	if t > 100 {
		return 100
	}
	if t < 0 {
		return 0
	}
	return t
}

// ProbeOutcome is the immutable record of one strategy run against one
// running instance.
type ProbeOutcome struct {
	Strategy  StrategyID         `json:"strategy"`
	Elements  []ElementCandidate `json:"elements,omitempty"`
	Attempted int                `json:"interactionsAttempted"`
	Succeeded int                `json:"interactionsSucceeded"`
	SubScores SubScores          `json:"subScores"`
	Notes     []string           `json:"notes,omitempty"`
	Errors    []string           `json:"errors,omitempty"`
	// Evidence carries a truncated capture of the page state at the point of
	// failure, enough to reconstruct why a check did not pass.
	Evidence string `json:"evidence,omitempty"`
}
