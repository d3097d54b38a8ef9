package healing

import (
	"fmt"
	"time"

	"testmend/internal/classify"
	"testmend/internal/logging"
)

// Config gates and bounds a healing session.
type Config struct {
	Enabled     bool
	MaxAttempts int

	// AllowedFixes is an allow-list; empty means every safe fix is allowed.
	AllowedFixes []FixType
	// ForbiddenFixes extends the built-in forbidden set. The combined deny
	// list is absolute: forbidden always overrides allowed.
	ForbiddenFixes []FixType

	// Circuit breaker thresholds.
	SameErrorThreshold   int
	ErrorHistorySize     int
	DegradationThreshold float64
	MaxTokens            int
	Cooldown             time.Duration
}

// DefaultConfig returns the standard healing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxAttempts:          5,
		SameErrorThreshold:   3,
		ErrorHistorySize:     10,
		DegradationThreshold: 0.5,
		MaxTokens:            0, // 0 = no token budget
		Cooldown:             5 * time.Minute,
	}
}

// Candidate is one rule-table entry: a fix type with its selection priority
// (lower runs first).
type Candidate struct {
	Fix      FixType
	Priority int
}

// ruleTable maps failure categories to ordered candidate fixes. Categories
// absent from the table are unhealable.
var ruleTable = map[classify.Category][]Candidate{
	classify.CategorySelector: {
		{Fix: FixSelectorRefine, Priority: 1},
		{Fix: FixAddExact, Priority: 2},
		{Fix: FixTimeoutIncrease, Priority: 3},
	},
	classify.CategoryTiming: {
		{Fix: FixMissingAwait, Priority: 1},
		{Fix: FixWebFirstAssertion, Priority: 2},
		{Fix: FixNavigationWait, Priority: 3},
		{Fix: FixTimeoutIncrease, Priority: 4},
	},
	classify.CategoryNavigation: {
		{Fix: FixNavigationWait, Priority: 1},
		{Fix: FixTimeoutIncrease, Priority: 2},
	},
	classify.CategoryAssertion: {
		{Fix: FixWebFirstAssertion, Priority: 1},
		{Fix: FixSelectorRefine, Priority: 2},
	},
}

// builtinForbidden are the unsafe fixes the engine must never emit,
// independent of configuration: fixed sleeps, assertion removal or
// weakening, and forced interactions that bypass visibility checks.
var builtinForbidden = map[FixType]bool{
	FixFixedDelay:       true,
	FixRemoveAssertion:  true,
	FixWeakenAssertion:  true,
	FixForceInteraction: true,
}

// unhealableCategories always yield zero candidates regardless of config:
// the failure lies outside the engine's competence.
var unhealableCategories = map[classify.Category]bool{
	classify.CategoryAuth:    true,
	classify.CategoryEnv:     true,
	classify.CategoryNetwork: true,
	classify.CategoryUnknown: true,
}

// isForbidden applies the absolute deny list: built-ins plus config.
func isForbidden(fix FixType, cfg Config) bool {
	if builtinForbidden[fix] {
		return true
	}
	for _, f := range cfg.ForbiddenFixes {
		if f == fix {
			return true
		}
	}
	return false
}

// isAllowed applies the allow-list; an empty list allows everything.
func isAllowed(fix FixType, cfg Config) bool {
	if len(cfg.AllowedFixes) == 0 {
		return true
	}
	for _, f := range cfg.AllowedFixes {
		if f == fix {
			return true
		}
	}
	return false
}

// EvaluateHealing decides whether a classified failure can be healed at all.
// The reason is human-readable and names the category when it is the cause.
func EvaluateHealing(cls *classify.Classification, cfg Config) (canHeal bool, reason string) {
	if cls == nil {
		return false, "failure could not be classified"
	}
	if !cfg.Enabled {
		return false, "healing is disabled by configuration"
	}
	if unhealableCategories[cls.Category] {
		return false, fmt.Sprintf("category %q is outside the healing engine's competence", cls.Category)
	}
	candidates := ruleTable[cls.Category]
	if len(candidates) == 0 {
		return false, fmt.Sprintf("no fix candidates are defined for category %q", cls.Category)
	}
	return true, ""
}

// GetNextFix returns the first allowed, non-forbidden, not-yet-attempted
// candidate for the classification, in priority order. It returns nil when
// the category is unhealable, healing is disabled, or candidates are
// exhausted. Forbidden fixes are never returned, even when also listed in
// AllowedFixes.
func GetNextFix(cls *classify.Classification, attempted []FixType, cfg Config) *Candidate {
	if cls == nil || !cfg.Enabled || unhealableCategories[cls.Category] {
		return nil
	}

	tried := make(map[FixType]bool, len(attempted))
	for _, f := range attempted {
		tried[f] = true
	}

	for _, cand := range ruleTable[cls.Category] {
		if isForbidden(cand.Fix, cfg) {
			logging.HealingDebug("Skipping forbidden fix %s for category %s", cand.Fix, cls.Category)
			continue
		}
		if !isAllowed(cand.Fix, cfg) || tried[cand.Fix] {
			continue
		}
		c := cand
		return &c
	}
	return nil
}

// ExhaustionRecommendation produces the category-specific guidance attached
// to an EXHAUSTED terminal state.
func ExhaustionRecommendation(cat classify.Category) string {
	switch cat {
	case classify.CategoryTiming:
		return "Persistent timing failures survived every safe fix; quarantine the test and review the flow for race conditions"
	case classify.CategorySelector:
		return "No selector variant stabilized the test; regenerate selectors from the current page or add data-testid attributes"
	case classify.CategoryNavigation:
		return "Navigation remained flaky after safe waits; verify the route and any redirects it performs"
	case classify.CategoryAssertion:
		return "Assertions still fail after safe rewrites; the expected values may be genuinely out of date"
	default:
		return fmt.Sprintf("All safe fixes for category %q were exhausted; manual review required", cat)
	}
}
