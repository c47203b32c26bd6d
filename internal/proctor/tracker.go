package proctor

// DefaultThreshold is the number of escalated alerts that ends a session.
const DefaultThreshold = 3

// ViolationTracker counts escalated alerts up to a threshold.
// The counter only grows, and the forced submission fires once. Not safe for concurrent use.
type ViolationTracker struct {
	threshold int
	count     int
	fired     bool
}

// NewViolationTracker creates a tracker. Non-positive thresholds use DefaultThreshold.
func NewViolationTracker(threshold int) *ViolationTracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &ViolationTracker{threshold: threshold}
}

// Record counts the alert. force is true exactly once, on the alert that reaches
// the threshold; afterwards every alert is ignored and accepted is false.
func (t *ViolationTracker) Record(a ViolationAlert) (w Warning, force bool, accepted bool) {
	if t.fired {
		return Warning{}, false, false
	}

	t.count++
	w = Warning{Kind: a.Kind, Count: t.count, Threshold: t.threshold, RaisedAt: a.RaisedAt}
	if t.count >= t.threshold {
		t.fired = true
		force = true
	}
	return w, force, true
}

func (t *ViolationTracker) Count() int { return t.count }

func (t *ViolationTracker) Fired() bool { return t.fired }
