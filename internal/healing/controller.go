package healing

import (
	"context"
	"fmt"
	"os"
	"time"

	"testmend/internal/classify"
	"testmend/internal/logging"
)

// Options configures one healing session.
type Options struct {
	// TestFile is the failing test to heal. Required.
	TestFile string
	// SessionID identifies the session; derived from TestFile when empty.
	SessionID string
	// SessionsDir holds journals and state snapshots.
	SessionsDir string
	// Config bounds the loop.
	Config Config
	// Steps map the test's generated steps back to their source text, so
	// terminal outcomes can be fed into the pattern store.
	Steps []StepMapping
}

// Outcome is the terminal result of a healing session.
type Outcome struct {
	Success         bool
	Status          Status
	Attempts        int
	AppliedFix      FixType
	FailureCategory classify.Category
	Recommendation  string
	LogPath         string
}

// Controller drives the bounded healing loop for single test files.
type Controller struct {
	verifier   Verifier
	applier    FixApplier
	classifier Classifier
	recorder   PatternRecorder
	now        func() time.Time
}

// NewController wires the loop to its collaborators. recorder may be nil when
// no pattern store feedback is wanted.
func NewController(verifier Verifier, applier FixApplier, classifier Classifier, recorder PatternRecorder) *Controller {
	return &Controller{
		verifier:   verifier,
		applier:    applier,
		classifier: classifier,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Heal runs the loop to a terminal status. Already-passing tests return
// HEALED with zero attempts and touch neither the journal state nor the
// pattern store, so re-running after success is a cheap no-op.
func (c *Controller) Heal(ctx context.Context, opts Options) (*Outcome, error) {
	if opts.TestFile == "" {
		return nil, fmt.Errorf("healing requires a test file")
	}
	if opts.SessionID == "" {
		opts.SessionID = DeriveSessionID(opts.TestFile)
	}

	timer := logging.StartTimer(logging.CategoryHealing, "heal "+opts.SessionID)
	defer timer.Stop()

	result, err := c.verifier.Verify(ctx, opts.TestFile)
	if err != nil {
		return nil, fmt.Errorf("initial verify failed: %w", err)
	}
	if result.Passed() {
		logging.Healing("Session %s: test already passing, nothing to heal", opts.SessionID)
		return &Outcome{Success: true, Status: StatusHealed}, nil
	}

	journal, err := OpenJournal(opts.SessionsDir, opts.SessionID)
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	session, err := c.newSession(opts, journal, result)
	if err != nil {
		return nil, err
	}
	return session.run(ctx)
}

// session is one in-flight healing loop.
type session struct {
	c       *Controller
	opts    Options
	journal *Journal

	breaker     *CircuitBreaker
	convergence *ConvergenceDetector
	attempts    int
	attempted   []FixType

	cls        *classify.Classification
	lastResult *VerifyResult
}

func (c *Controller) newSession(opts Options, journal *Journal, initial *VerifyResult) (*session, error) {
	s := &session{
		c:           c,
		opts:        opts,
		journal:     journal,
		breaker:     NewCircuitBreaker(opts.Config),
		convergence: NewConvergenceDetector(),
		lastResult:  initial,
	}

	state, err := LoadSessionState(opts.SessionsDir, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		// A restarted session continues from its snapshot; the journal is an
		// audit trail, never a replay source.
		s.breaker = RestoreCircuitBreaker(state.Breaker, opts.Config)
		s.convergence = RestoreConvergence(state.Convergence)
		s.attempts = state.Attempts
		logging.Healing("Session %s: resumed at attempt %d", opts.SessionID, s.attempts)
	}

	s.cls = s.classifyResult(initial)
	return s, nil
}

// classifyResult picks the classification for the first failing test,
// preferring one already present in the verify report.
func (s *session) classifyResult(result *VerifyResult) *classify.Classification {
	if len(result.Failures.Tests) == 0 {
		return nil
	}
	first := result.Failures.Tests[0]
	if cls, ok := result.Failures.Classifications[first.Test]; ok && cls != nil {
		return cls
	}
	return s.c.classifier.Classify(first.Message)
}

func (s *session) run(ctx context.Context) (*Outcome, error) {
	if s.cls == nil {
		return s.terminal(StatusNotHealable, "",
			"failure could not be classified; manual review required")
	}
	if canHeal, reason := EvaluateHealing(s.cls, s.opts.Config); !canHeal {
		return s.terminal(StatusNotHealable, "", reason)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("healing cancelled: %w", err)
		}
		if s.attempts >= s.opts.Config.MaxAttempts {
			return s.terminal(StatusExhausted, "",
				fmt.Sprintf("attempt budget of %d exhausted; %s",
					s.opts.Config.MaxAttempts, ExhaustionRecommendation(s.cls.Category)))
		}
		if !s.breaker.Allow() {
			return s.terminal(StatusExhausted, "",
				fmt.Sprintf("circuit breaker open (%s); %s",
					s.breaker.OpenReason(), ExhaustionRecommendation(s.cls.Category)))
		}

		cand := GetNextFix(s.cls, s.attempted, s.opts.Config)
		if cand == nil {
			return s.terminal(StatusExhausted, "", ExhaustionRecommendation(s.cls.Category))
		}

		outcome, status, err := s.attempt(ctx, cand.Fix)
		if err != nil {
			return nil, err
		}
		if status == StatusHealed {
			return outcome, nil
		}
		if status == StatusNotHealable {
			return outcome, nil
		}
	}
}

// attempt tries one candidate fix. It returns a non-empty status only on a
// terminal state; otherwise the loop continues with the next candidate.
func (s *session) attempt(ctx context.Context, fix FixType) (*Outcome, Status, error) {
	started := s.c.now()
	s.attempted = append(s.attempted, fix)

	code, err := os.ReadFile(s.opts.TestFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read test file: %w", err)
	}

	fctx := FixContext{
		TestFile:       s.opts.TestFile,
		Classification: s.cls,
		ErrorMessage:   s.lastResult.FirstFailureMessage(),
	}

	applied, err := s.c.applier.ApplyFix(ctx, fix, string(code), fctx)
	if err != nil {
		// A collaborator error burns an attempt but keeps the loop alive; the
		// next candidate may still succeed.
		s.attempts++
		if jerr := s.journalAttempt(fix, ResultError, false, err.Error(), started); jerr != nil {
			return nil, "", jerr
		}
		if serr := s.saveState(); serr != nil {
			return nil, "", serr
		}
		return nil, "", nil
	}

	if !applied.Applied {
		// Declined fixes are journaled for the audit trail but do not consume
		// a verify cycle or an attempt from the budget.
		logging.HealingDebug("Session %s: fix %s declined (%s)",
			s.opts.SessionID, fix, applied.Description)
		if jerr := s.journalSkipped(fix, applied.Description, started); jerr != nil {
			return nil, "", jerr
		}
		return nil, "", nil
	}

	if err := os.WriteFile(s.opts.TestFile, []byte(applied.Code), 0644); err != nil {
		return nil, "", fmt.Errorf("failed to write healed test file: %w", err)
	}

	s.attempts++
	result, err := s.c.verifier.Verify(ctx, s.opts.TestFile)
	if err != nil {
		if jerr := s.journalAttempt(fix, ResultError, false, err.Error(), started); jerr != nil {
			return nil, "", jerr
		}
		s.breaker.RecordAttempt("", applied.TokensUsed, false)
		if serr := s.saveState(); serr != nil {
			return nil, "", serr
		}
		return nil, "", nil
	}

	if result.Passed() {
		if jerr := s.journalAttemptOutcome(fix, ResultPass, applied.Description, "", started); jerr != nil {
			return nil, "", jerr
		}
		outcome, err := s.terminal(StatusHealed, fix, "")
		return outcome, StatusHealed, err
	}

	// The attempt record must be durable before any state advances, so a
	// crash here cannot lose evidence of a change already made to the file.
	message := result.FirstFailureMessage()
	if jerr := s.journalAttemptOutcome(fix, ResultFail, applied.Description, message, started); jerr != nil {
		return nil, "", jerr
	}

	previousErrors := len(s.lastResult.Failures.Tests)
	currentErrors := len(result.Failures.Tests)
	s.breaker.RecordAttempt(ErrorFingerprint(message), applied.TokensUsed, currentErrors > previousErrors)
	s.convergence.Record(currentErrors)
	s.lastResult = result

	if serr := s.saveState(); serr != nil {
		return nil, "", serr
	}

	// Re-classify: a fix can shift the failure into a different category,
	// including one the engine cannot heal.
	if next := s.classifyResult(result); next != nil && next.Category != s.cls.Category {
		logging.Healing("Session %s: failure category shifted %s -> %s",
			s.opts.SessionID, s.cls.Category, next.Category)
		s.cls = next
		if canHeal, reason := EvaluateHealing(s.cls, s.opts.Config); !canHeal {
			outcome, err := s.terminal(StatusNotHealable, "", reason)
			return outcome, StatusNotHealable, err
		}
	}
	return nil, "", nil
}

func (s *session) journalAttempt(fix FixType, result AttemptResult, skipped bool, message string, started time.Time) error {
	return s.journal.AppendAttempt(&HealingAttempt{
		AttemptNumber:   s.attempts,
		FailureCategory: s.cls.Category,
		FixType:         fix,
		File:            s.opts.TestFile,
		Result:          result,
		Skipped:         skipped,
		ErrorMessage:    message,
		DurationMs:      s.c.now().Sub(started).Milliseconds(),
		Timestamp:       s.c.now().UTC(),
	})
}

func (s *session) journalAttemptOutcome(fix FixType, result AttemptResult, description, message string, started time.Time) error {
	return s.journal.AppendAttempt(&HealingAttempt{
		AttemptNumber:     s.attempts,
		FailureCategory:   s.cls.Category,
		FixType:           fix,
		File:              s.opts.TestFile,
		ChangeDescription: description,
		Result:            result,
		ErrorMessage:      message,
		DurationMs:        s.c.now().Sub(started).Milliseconds(),
		Timestamp:         s.c.now().UTC(),
	})
}

func (s *session) journalSkipped(fix FixType, reason string, started time.Time) error {
	return s.journal.AppendAttempt(&HealingAttempt{
		AttemptNumber:     s.attempts,
		FailureCategory:   s.cls.Category,
		FixType:           fix,
		File:              s.opts.TestFile,
		ChangeDescription: reason,
		Result:            ResultFail,
		Skipped:           true,
		DurationMs:        s.c.now().Sub(started).Milliseconds(),
		Timestamp:         s.c.now().UTC(),
	})
}

func (s *session) saveState() error {
	return SaveSessionState(s.opts.SessionsDir, &SessionState{
		SessionID:   s.opts.SessionID,
		TestFile:    s.opts.TestFile,
		Attempts:    s.attempts,
		Breaker:     s.breaker.Snapshot(),
		Convergence: s.convergence.Snapshot(),
	})
}

// terminal journals the final status, clears or keeps session state, feeds
// the pattern store, and builds the outcome.
func (s *session) terminal(status Status, fix FixType, recommendation string) (*Outcome, error) {
	if err := s.journal.AppendTerminal(status, recommendation); err != nil {
		return nil, err
	}

	var category classify.Category
	if s.cls != nil {
		category = s.cls.Category
	}

	switch status {
	case StatusHealed:
		if err := ClearSessionState(s.opts.SessionsDir, s.opts.SessionID); err != nil {
			logging.Get(logging.CategoryHealing).Warn(
				"Failed to clear state for healed session %s: %v", s.opts.SessionID, err)
		}
		s.recordSteps(true)
		logging.Healing("Session %s: HEALED after %d attempt(s) via %s",
			s.opts.SessionID, s.attempts, fix)
	default:
		s.recordSteps(false)
		logging.Healing("Session %s: %s after %d attempt(s): %s",
			s.opts.SessionID, status, s.attempts, recommendation)
	}

	return &Outcome{
		Success:         status == StatusHealed,
		Status:          status,
		Attempts:        s.attempts,
		AppliedFix:      fix,
		FailureCategory: category,
		Recommendation:  recommendation,
		LogPath:         s.journal.Path(),
	}, nil
}

// recordSteps feeds the terminal outcome back into the pattern store for
// every step the generator mapped through a learned pattern.
func (s *session) recordSteps(success bool) {
	if s.c.recorder == nil {
		return
	}
	for _, step := range s.opts.Steps {
		var err error
		if success {
			err = s.c.recorder.RecordSuccess(step.Text, step.Action, step.JourneyID)
		} else {
			err = s.c.recorder.RecordFailure(step.Text, step.JourneyID)
		}
		if err != nil {
			logging.Get(logging.CategoryHealing).Warn(
				"Failed to record pattern outcome for %q: %v", step.Text, err)
		}
	}
}
