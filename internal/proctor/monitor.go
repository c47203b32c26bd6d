package proctor

import "time"

// DefaultDebounce is the minimum spacing between two escalated alerts.
const DefaultDebounce = 5 * time.Second

// Classify maps a face count to its classification.
func Classify(faceCount int) Classification {
	switch {
	case faceCount == 0:
		return ClassNoFace
	case faceCount == 1:
		return ClassOK
	default:
		return ClassMultiFace
	}
}

// LivenessMonitor classifies samples and debounces alerts.
// Debounce is measured from the last escalated alert of any kind; ok samples
// never touch it. Not safe for concurrent use.
type LivenessMonitor struct {
	debounce  time.Duration
	lastAlert time.Time
	alerted   bool
}

// NewLivenessMonitor creates a monitor. A zero debounce escalates every violation.
func NewLivenessMonitor(debounce time.Duration) *LivenessMonitor {
	return &LivenessMonitor{debounce: debounce}
}

// Observe classifies the sample and returns an alert when it must be escalated.
func (m *LivenessMonitor) Observe(s FaceSample) (Classification, *ViolationAlert) {
	c := Classify(s.FaceCount)
	if c == ClassOK {
		return c, nil
	}
	if m.alerted && s.CapturedAt.Sub(m.lastAlert) < m.debounce {
		return c, nil
	}

	m.alerted = true
	m.lastAlert = s.CapturedAt
	return c, &ViolationAlert{Kind: c, RaisedAt: s.CapturedAt}
}
