package domain

// Requirement is one line item from the assignment's requirements document,
// reduced to the keywords a probe can look for on the rendered page.
type Requirement struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords,omitempty"`
	Points   int      `json:"points,omitempty"`
}

// Expectations are the capability hints derived from requirements text that
// steer element discovery. All hints are best-effort: a missing capability
// reduces the score, it does not abort the probe.
type Expectations struct {
	HasForm       bool          `json:"hasForm"`
	HasNavigation bool          `json:"hasNavigation"`
	HasButtons    bool          `json:"hasButtons"`
	Requirements  []Requirement `json:"requirements,omitempty"`
}
