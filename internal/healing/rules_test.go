package healing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testmend/internal/classify"
)

func classification(cat classify.Category) *classify.Classification {
	return &classify.Classification{Category: cat, Confidence: 0.9}
}

func TestEvaluateHealingUnhealableCategories(t *testing.T) {
	cfg := DefaultConfig()
	for _, cat := range []classify.Category{
		classify.CategoryAuth,
		classify.CategoryEnv,
		classify.CategoryNetwork,
		classify.CategoryUnknown,
	} {
		canHeal, reason := EvaluateHealing(classification(cat), cfg)
		assert.False(t, canHeal, "category %s", cat)
		assert.Contains(t, reason, string(cat), "the reason names the category")
	}
}

func TestEvaluateHealingAuthFailure(t *testing.T) {
	// An expired-credentials failure must be refused, with auth in the reason.
	cls := classify.ClassifyReport("Error: authentication failed, session token expired (401 Unauthorized)")
	require.NotNil(t, cls)
	require.Equal(t, classify.CategoryAuth, cls.Category)

	canHeal, reason := EvaluateHealing(cls, DefaultConfig())
	assert.False(t, canHeal)
	assert.Contains(t, reason, "auth")
}

func TestEvaluateHealingHealableCategories(t *testing.T) {
	cfg := DefaultConfig()
	for _, cat := range []classify.Category{
		classify.CategorySelector,
		classify.CategoryTiming,
		classify.CategoryNavigation,
		classify.CategoryAssertion,
	} {
		canHeal, reason := EvaluateHealing(classification(cat), cfg)
		assert.True(t, canHeal, "category %s: %s", cat, reason)
	}
}

func TestEvaluateHealingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	canHeal, _ := EvaluateHealing(classification(classify.CategorySelector), cfg)
	assert.False(t, canHeal)
}

func TestEvaluateHealingNilClassification(t *testing.T) {
	canHeal, _ := EvaluateHealing(nil, DefaultConfig())
	assert.False(t, canHeal)
}

func TestGetNextFixPriorityOrder(t *testing.T) {
	cfg := DefaultConfig()
	cls := classification(classify.CategorySelector)

	var attempted []FixType
	var got []FixType
	for {
		cand := GetNextFix(cls, attempted, cfg)
		if cand == nil {
			break
		}
		got = append(got, cand.Fix)
		attempted = append(attempted, cand.Fix)
	}
	assert.Equal(t, []FixType{FixSelectorRefine, FixAddExact, FixTimeoutIncrease}, got)
}

func TestGetNextFixExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cls := classification(classify.CategoryNavigation)

	attempted := []FixType{FixNavigationWait, FixTimeoutIncrease}
	assert.Nil(t, GetNextFix(cls, attempted, cfg))
}

func TestGetNextFixNeverReturnsForbidden(t *testing.T) {
	cfg := DefaultConfig()
	// Even explicitly allowed, a built-in forbidden fix must never surface.
	cfg.AllowedFixes = []FixType{FixFixedDelay, FixRemoveAssertion, FixWeakenAssertion, FixForceInteraction}

	for _, cat := range []classify.Category{
		classify.CategorySelector,
		classify.CategoryTiming,
		classify.CategoryNavigation,
		classify.CategoryAssertion,
	} {
		var attempted []FixType
		for {
			cand := GetNextFix(classification(cat), attempted, cfg)
			if cand == nil {
				break
			}
			assert.False(t, builtinForbidden[cand.Fix],
				"category %s emitted forbidden fix %s", cat, cand.Fix)
			attempted = append(attempted, cand.Fix)
		}
	}
}

func TestGetNextFixConfiguredForbiddenOverridesAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedFixes = []FixType{FixSelectorRefine, FixAddExact}
	cfg.ForbiddenFixes = []FixType{FixSelectorRefine}

	cand := GetNextFix(classification(classify.CategorySelector), nil, cfg)
	require.NotNil(t, cand)
	assert.Equal(t, FixAddExact, cand.Fix, "forbidden overrides allowed for the same fix")
}

func TestGetNextFixAllowListFilters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedFixes = []FixType{FixTimeoutIncrease}

	cand := GetNextFix(classification(classify.CategorySelector), nil, cfg)
	require.NotNil(t, cand)
	assert.Equal(t, FixTimeoutIncrease, cand.Fix)

	assert.Nil(t, GetNextFix(classification(classify.CategorySelector), []FixType{FixTimeoutIncrease}, cfg))
}

func TestGetNextFixUnhealable(t *testing.T) {
	assert.Nil(t, GetNextFix(classification(classify.CategoryAuth), nil, DefaultConfig()))
	assert.Nil(t, GetNextFix(nil, nil, DefaultConfig()))
}

func TestExhaustionRecommendationPerCategory(t *testing.T) {
	assert.Contains(t, ExhaustionRecommendation(classify.CategoryTiming), "quarantine")
	assert.NotEmpty(t, ExhaustionRecommendation(classify.CategorySelector))
	assert.NotEmpty(t, ExhaustionRecommendation(classify.Category("bogus")))
}
