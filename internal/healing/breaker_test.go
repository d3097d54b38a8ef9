package healing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := NewCircuitBreaker(DefaultConfig())
	assert.True(t, b.Allow())
	assert.Equal(t, OpenReasonNone, b.OpenReason())
}

func TestBreakerOpensOnRepeatedError(t *testing.T) {
	cfg := DefaultConfig() // SameErrorThreshold 3
	b := NewCircuitBreaker(cfg)

	fp := ErrorFingerprint("Timeout 5000ms waiting for locator('#login')")
	b.RecordAttempt(fp, 0, false)
	assert.True(t, b.Allow())
	b.RecordAttempt(fp, 0, false)
	assert.True(t, b.Allow())
	b.RecordAttempt(fp, 0, false)

	assert.False(t, b.Allow())
	assert.Equal(t, OpenReasonSameError, b.OpenReason())
}

func TestBreakerDistinctErrorsStayClosed(t *testing.T) {
	b := NewCircuitBreaker(DefaultConfig())
	b.RecordAttempt(ErrorFingerprint("error alpha"), 0, false)
	b.RecordAttempt(ErrorFingerprint("error beta"), 0, false)
	b.RecordAttempt(ErrorFingerprint("error gamma"), 0, false)
	assert.True(t, b.Allow())
}

func TestBreakerOpensOnCost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokens = 1000
	b := NewCircuitBreaker(cfg)

	b.RecordAttempt(ErrorFingerprint("e1"), 600, false)
	assert.True(t, b.Allow())
	b.RecordAttempt(ErrorFingerprint("e2"), 600, false)

	assert.False(t, b.Allow())
	assert.Equal(t, OpenReasonCostExceeded, b.OpenReason())
}

func TestBreakerOpensOnDegradation(t *testing.T) {
	cfg := DefaultConfig() // DegradationThreshold 0.5, needs >= 3 attempts
	b := NewCircuitBreaker(cfg)

	b.RecordAttempt(ErrorFingerprint("e1"), 0, true)
	b.RecordAttempt(ErrorFingerprint("e2"), 0, true)
	assert.True(t, b.Allow(), "degradation needs at least three attempts of signal")
	b.RecordAttempt(ErrorFingerprint("e3"), 0, true)

	assert.False(t, b.Allow())
	assert.Equal(t, OpenReasonDegrading, b.OpenReason())
}

func TestBreakerCooldownRecloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = time.Minute
	b := NewCircuitBreaker(cfg)

	fp := ErrorFingerprint("same failure")
	for i := 0; i < cfg.SameErrorThreshold; i++ {
		b.RecordAttempt(fp, 0, false)
	}
	require.False(t, b.Allow())

	// Simulate elapsed cooldown by rewinding the open timestamp.
	snap := b.Snapshot()
	past := time.Now().Add(-2 * time.Minute)
	snap.OpenedAt = &past
	b = RestoreCircuitBreaker(snap, cfg)

	assert.True(t, b.Allow(), "an open breaker recloses after the cooldown")
	assert.Equal(t, OpenReasonNone, b.OpenReason())
}

func TestBreakerSnapshotRestore(t *testing.T) {
	cfg := DefaultConfig()
	b := NewCircuitBreaker(cfg)
	fp := ErrorFingerprint("recurring failure")
	b.RecordAttempt(fp, 100, false)
	b.RecordAttempt(fp, 100, false)

	// Restart: restore from snapshot, then advance by exactly one new
	// observation. The third identical error trips the threshold.
	restored := RestoreCircuitBreaker(b.Snapshot(), cfg)
	assert.True(t, restored.Allow())
	restored.RecordAttempt(fp, 100, false)

	assert.False(t, restored.Allow())
	assert.Equal(t, OpenReasonSameError, restored.OpenReason())

	snap := restored.Snapshot()
	assert.Equal(t, 3, snap.AttemptCount)
	assert.Equal(t, 300, snap.TokensUsed)
}

func TestBreakerErrorHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SameErrorThreshold = 100 // keep it closed
	b := NewCircuitBreaker(cfg)

	for i := 0; i < cfg.ErrorHistorySize*2; i++ {
		b.RecordAttempt(ErrorFingerprint("failure variant "+string(rune('a'+i))), 0, false)
	}
	assert.LessOrEqual(t, len(b.Snapshot().ErrorHistory), cfg.ErrorHistorySize)
}

func TestBreakerReset(t *testing.T) {
	b := NewCircuitBreaker(DefaultConfig())
	fp := ErrorFingerprint("x")
	for i := 0; i < 3; i++ {
		b.RecordAttempt(fp, 0, false)
	}
	require.False(t, b.Allow())

	b.Reset()
	assert.True(t, b.Allow())
	assert.Zero(t, b.Snapshot().AttemptCount)
}

func TestErrorFingerprintStability(t *testing.T) {
	// Run-to-run variation in numbers and whitespace must not change identity.
	a := ErrorFingerprint("Timeout 5000ms waiting for locator('#login') on port 3001")
	b := ErrorFingerprint("timeout 8000ms  waiting for locator('#login') on port 3002")
	assert.Equal(t, a, b)

	c := ErrorFingerprint("element not found: #login")
	assert.NotEqual(t, a, c)

	assert.Empty(t, ErrorFingerprint("   "))
}
