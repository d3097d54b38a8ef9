// Package healing implements the bounded repair loop for failing generated
// tests: a rule table mapping failure categories to safe candidate fixes, a
// per-session circuit breaker and convergence detector, an append-only
// session journal, and the loop controller state machine that ties them to
// injected verify/apply collaborators.
package healing

import (
	"context"
	"time"

	"testmend/internal/classify"
	"testmend/internal/primitive"
)

// FixType identifies one kind of repair the engine can apply.
type FixType string

const (
	FixSelectorRefine    FixType = "selector-refine"
	FixAddExact          FixType = "add-exact"
	FixMissingAwait      FixType = "missing-await"
	FixNavigationWait    FixType = "navigation-wait"
	FixWebFirstAssertion FixType = "web-first-assertion"
	FixTimeoutIncrease   FixType = "timeout-increase"

	// Unsafe fix kinds. Named so deny lists can express them, but they are
	// built-in forbidden and are never emitted by fix selection.
	FixFixedDelay       FixType = "fixed-delay"
	FixRemoveAssertion  FixType = "remove-assertion"
	FixWeakenAssertion  FixType = "weaken-assertion"
	FixForceInteraction FixType = "force-interaction"
)

// AttemptResult is the outcome of a single healing attempt. "error" marks a
// collaborator failure (verify or apply threw), distinct from a test that ran
// and failed.
type AttemptResult string

const (
	ResultPass  AttemptResult = "pass"
	ResultFail  AttemptResult = "fail"
	ResultError AttemptResult = "error"
)

// Status is a terminal healing session state.
type Status string

const (
	StatusHealed      Status = "HEALED"
	StatusNotHealable Status = "NOT_HEALABLE"
	StatusExhausted   Status = "EXHAUSTED"
	StatusFailed      Status = "FAILED"
)

// HealingAttempt is one durably journaled attempt record.
type HealingAttempt struct {
	AttemptNumber     int               `json:"attemptNumber"`
	FailureCategory   classify.Category `json:"failureCategory"`
	FixType           FixType           `json:"fixType"`
	File              string            `json:"file"`
	ChangeDescription string            `json:"changeDescription"`
	Evidence          []string          `json:"evidence,omitempty"`
	Result            AttemptResult     `json:"result"`
	Skipped           bool              `json:"skipped,omitempty"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	DurationMs        int64             `json:"durationMs"`
	Timestamp         time.Time         `json:"timestamp"`
}

// VerifyStatus is the verdict of one verify run.
type VerifyStatus string

const (
	VerifyPassed VerifyStatus = "passed"
	VerifyFailed VerifyStatus = "failed"
)

// TestFailure is one failing test inside a verify report.
type TestFailure struct {
	Test    string `json:"test"`
	Message string `json:"message"`
}

// VerifyFailures groups the failing tests of a verify run with any
// classifications the runner already produced.
type VerifyFailures struct {
	Tests           []TestFailure                       `json:"tests"`
	Classifications map[string]*classify.Classification `json:"classifications,omitempty"`
}

// VerifyResult is the report of one verify run.
type VerifyResult struct {
	Status     VerifyStatus   `json:"status"`
	Failures   VerifyFailures `json:"failures"`
	ReportPath string         `json:"reportPath,omitempty"`
}

// Passed reports whether the run was green.
func (r *VerifyResult) Passed() bool { return r.Status == VerifyPassed }

// FirstFailureMessage returns the first failing test's message, or "".
func (r *VerifyResult) FirstFailureMessage() string {
	if len(r.Failures.Tests) == 0 {
		return ""
	}
	return r.Failures.Tests[0].Message
}

// FixContext carries what a fix strategy needs beyond the code itself.
type FixContext struct {
	TestFile       string
	Classification *classify.Classification
	ErrorMessage   string
}

// FixOutcome is the result of applying (or declining) a fix.
type FixOutcome struct {
	Applied     bool
	Code        string
	Description string
	TokensUsed  int
}

// Verifier runs the test and reports the result. Implementations own no
// retry or timeout policy; the caller bounds the call via ctx.
type Verifier interface {
	Verify(ctx context.Context, testFile string) (*VerifyResult, error)
}

// FixApplier transforms test code for a given fix type. Strategies may
// decline (Applied=false) when their precondition is not met.
type FixApplier interface {
	ApplyFix(ctx context.Context, fix FixType, code string, fctx FixContext) (FixOutcome, error)
}

// Classifier turns a raw failure report into a classification, or nil when
// the report is unclassifiable.
type Classifier interface {
	Classify(report string) *classify.Classification
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(report string) *classify.Classification

// Classify implements Classifier.
func (f ClassifierFunc) Classify(report string) *classify.Classification { return f(report) }

// PatternRecorder receives terminal healing outcomes for the step mappings of
// the healed test. *patterns.Store satisfies it.
type PatternRecorder interface {
	RecordSuccess(text string, action primitive.Action, journeyID string) error
	RecordFailure(text string, journeyID string) error
}

// StepMapping is one generated step's provenance: the natural-language text,
// the action it was mapped to, and the journey it came from. Terminal healing
// outcomes are fed back into the pattern store through these.
type StepMapping struct {
	Text      string           `json:"text"`
	Action    primitive.Action `json:"action"`
	JourneyID string           `json:"journeyId,omitempty"`
}
