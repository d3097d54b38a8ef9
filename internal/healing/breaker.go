package healing

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
)

// OpenReason says why a circuit breaker opened.
type OpenReason string

const (
	OpenReasonNone         OpenReason = "none"
	OpenReasonSameError    OpenReason = "same-error-repeated"
	OpenReasonDegrading    OpenReason = "degrading"
	OpenReasonCostExceeded OpenReason = "cost-exceeded"
)

// BreakerSnapshot is the serializable breaker state. A breaker is restored
// from a snapshot plus exactly the new observation; the historical journal is
// never replayed, which would double-count attempts across restarts.
type BreakerSnapshot struct {
	IsOpen       bool       `json:"isOpen"`
	OpenReason   OpenReason `json:"openReason"`
	OpenedAt     *time.Time `json:"openedAt,omitempty"`
	AttemptCount int        `json:"attemptCount"`
	ErrorHistory []string   `json:"errorHistory"`
	WorseCount   int        `json:"worseCount"`
	TokensUsed   int        `json:"tokensUsed"`
}

// CircuitBreaker tracks attempt and error history for one healing session
// and blocks further attempts on sustained repetition, cost overrun, or
// degradation.
type CircuitBreaker struct {
	cfg   Config
	state BreakerSnapshot
	now   func() time.Time
}

// NewCircuitBreaker creates a closed breaker for a fresh session.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return RestoreCircuitBreaker(BreakerSnapshot{OpenReason: OpenReasonNone}, cfg)
}

// RestoreCircuitBreaker reconstructs a breaker from a persisted snapshot.
func RestoreCircuitBreaker(snap BreakerSnapshot, cfg Config) *CircuitBreaker {
	if snap.OpenReason == "" {
		snap.OpenReason = OpenReasonNone
	}
	return &CircuitBreaker{cfg: cfg, state: snap, now: time.Now}
}

// Allow reports whether another attempt may run. An open breaker closes
// again once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	if !b.state.IsOpen {
		return true
	}
	if b.cfg.Cooldown > 0 && b.state.OpenedAt != nil &&
		b.now().Sub(*b.state.OpenedAt) >= b.cfg.Cooldown {
		b.Reset()
		return true
	}
	return false
}

// OpenReason returns why the breaker is open (OpenReasonNone when closed).
func (b *CircuitBreaker) OpenReason() OpenReason { return b.state.OpenReason }

// RecordAttempt records exactly one new observation: the attempt's error
// fingerprint ("" for a passing attempt), tokens spent, and whether the
// attempt made the failure count worse. It then re-evaluates the opening
// conditions.
func (b *CircuitBreaker) RecordAttempt(fingerprint string, tokens int, worse bool) {
	b.state.AttemptCount++
	b.state.TokensUsed += tokens
	if worse {
		b.state.WorseCount++
	}

	if fingerprint != "" {
		b.state.ErrorHistory = append(b.state.ErrorHistory, fingerprint)
		if size := b.cfg.ErrorHistorySize; size > 0 && len(b.state.ErrorHistory) > size {
			b.state.ErrorHistory = b.state.ErrorHistory[len(b.state.ErrorHistory)-size:]
		}
	}

	b.evaluate(fingerprint)
}

// evaluate opens the breaker when any threshold is crossed.
func (b *CircuitBreaker) evaluate(latest string) {
	if b.state.IsOpen {
		return
	}

	if b.cfg.MaxTokens > 0 && b.state.TokensUsed > b.cfg.MaxTokens {
		b.open(OpenReasonCostExceeded)
		return
	}

	if latest != "" && b.cfg.SameErrorThreshold > 0 {
		repeats := 0
		for _, fp := range b.state.ErrorHistory {
			if fp == latest {
				repeats++
			}
		}
		if repeats >= b.cfg.SameErrorThreshold {
			b.open(OpenReasonSameError)
			return
		}
	}

	// Degradation needs a few attempts of signal before it can trip.
	if b.cfg.DegradationThreshold > 0 && b.state.AttemptCount >= 3 {
		ratio := float64(b.state.WorseCount) / float64(b.state.AttemptCount)
		if ratio > b.cfg.DegradationThreshold {
			b.open(OpenReasonDegrading)
		}
	}
}

func (b *CircuitBreaker) open(reason OpenReason) {
	now := b.now()
	b.state.IsOpen = true
	b.state.OpenReason = reason
	b.state.OpenedAt = &now
}

// Reset closes the breaker and clears its history. Called on terminal HEALED
// or an explicit clear.
func (b *CircuitBreaker) Reset() {
	b.state = BreakerSnapshot{OpenReason: OpenReasonNone}
}

// Snapshot returns the serializable state.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	snap := b.state
	snap.ErrorHistory = append([]string(nil), b.state.ErrorHistory...)
	return snap
}

var digitRun = regexp.MustCompile(`\d+`)

// ErrorFingerprint reduces an error message to a stable identity: lowercased,
// digits collapsed (timeouts and ports vary between runs of the same
// failure), whitespace normalized, then hashed.
func ErrorFingerprint(message string) string {
	if strings.TrimSpace(message) == "" {
		return ""
	}
	norm := strings.ToLower(message)
	norm = digitRun.ReplaceAllString(norm, "#")
	norm = strings.Join(strings.Fields(norm), " ")

	h := fnv.New64a()
	h.Write([]byte(norm))
	return fmt.Sprintf("%016x", h.Sum64())
}
