package healing

// Trend classifies how the per-attempt error counts are evolving.
type Trend string

const (
	TrendImproving   Trend = "improving"
	TrendDegrading   Trend = "degrading"
	TrendStagnating  Trend = "stagnating"
	TrendOscillating Trend = "oscillating"
)

// ConvergenceSnapshot is the serializable detector state: the ordered
// per-attempt error counts. Like the breaker, a detector is restored from a
// snapshot and advanced by single observations, never by replaying history.
type ConvergenceSnapshot struct {
	ErrorCountHistory []int `json:"errorCountHistory"`
}

// ConvergenceDetector tracks per-attempt error counts for one session and
// derives the trend and improvement.
type ConvergenceDetector struct {
	history []int
}

// NewConvergenceDetector creates an empty detector.
func NewConvergenceDetector() *ConvergenceDetector {
	return &ConvergenceDetector{}
}

// RestoreConvergence reconstructs a detector from a persisted snapshot.
func RestoreConvergence(snap ConvergenceSnapshot) *ConvergenceDetector {
	return &ConvergenceDetector{history: append([]int(nil), snap.ErrorCountHistory...)}
}

// Record appends one attempt's error count.
func (d *ConvergenceDetector) Record(errorCount int) {
	d.history = append(d.history, errorCount)
}

// Snapshot returns the serializable state.
func (d *ConvergenceDetector) Snapshot() ConvergenceSnapshot {
	return ConvergenceSnapshot{ErrorCountHistory: append([]int(nil), d.history...)}
}

// History returns the recorded error counts.
func (d *ConvergenceDetector) History() []int {
	return append([]int(nil), d.history...)
}

// Trend classifies the history:
//   - improving: never rises and ends strictly below the start (or at zero)
//   - degrading: never falls and ends strictly above the start
//   - oscillating: direction reverses more than once
//   - stagnating: stays within a flat band without reaching zero
func (d *ConvergenceDetector) Trend() Trend {
	h := d.history
	if len(h) == 0 {
		return TrendStagnating
	}
	if len(h) == 1 {
		if h[0] == 0 {
			return TrendImproving
		}
		return TrendStagnating
	}

	nonIncreasing, nonDecreasing := true, true
	reversals := 0
	lastDirection := 0 // -1 falling, +1 rising
	for i := 1; i < len(h); i++ {
		delta := h[i] - h[i-1]
		if delta > 0 {
			nonIncreasing = false
			if lastDirection == -1 {
				reversals++
			}
			lastDirection = 1
		} else if delta < 0 {
			nonDecreasing = false
			if lastDirection == 1 {
				reversals++
			}
			lastDirection = -1
		}
	}

	if reversals > 1 {
		return TrendOscillating
	}

	first, last := h[0], h[len(h)-1]
	switch {
	case nonIncreasing && (last < first || last == 0):
		if last == first && last != 0 {
			return TrendStagnating
		}
		return TrendImproving
	case nonDecreasing && last > first:
		return TrendDegrading
	default:
		return TrendStagnating
	}
}

// ImprovementPercent is the relative error reduction from the first attempt
// to the last, in percent. Zero when the history is empty or started at zero.
func (d *ConvergenceDetector) ImprovementPercent() float64 {
	if len(d.history) == 0 {
		return 0
	}
	first := d.history[0]
	if first == 0 {
		return 0
	}
	last := d.history[len(d.history)-1]
	return float64(first-last) / float64(first) * 100
}
