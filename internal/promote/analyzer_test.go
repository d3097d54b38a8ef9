package promote

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testmend/internal/patterns"
	"testmend/internal/primitive"
)

func pattern(mutate func(*patterns.LearnedPattern)) patterns.LearnedPattern {
	p := patterns.LearnedPattern{
		ID:             "p1",
		OriginalText:   "Click the login button",
		NormalizedText: "click the login button",
		Primitive:      primitive.Action{Type: primitive.ActionClick, Selector: "#login"},
		Confidence:     0.95,
		SourceJourneys: []string{"a", "b"},
		SuccessCount:   6,
		FailCount:      1,
	}
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func TestMeetsCriteriaAllThresholds(t *testing.T) {
	c := DefaultCriteria()

	ok, missing := MeetsCriteria(&patterns.LearnedPattern{
		Confidence:     0.95,
		SuccessCount:   6,
		FailCount:      1,
		SourceJourneys: []string{"a", "b"},
	}, c)
	assert.True(t, ok, "missing: %v", missing)
}

func TestMeetsCriteriaBoundariesInclusive(t *testing.T) {
	c := DefaultCriteria()

	// Exactly at every threshold: 17 successes, 2 failures gives a success
	// rate of 17/19 ~= 0.894 which misses the 0.85... check each boundary
	// in isolation instead.
	boundary := patterns.LearnedPattern{
		Confidence:     c.MinConfidence,
		SuccessCount:   17,
		FailCount:      c.MaxFailCount,
		SourceJourneys: []string{"a", "b"},
	}
	ok, missing := MeetsCriteria(&boundary, c)
	assert.True(t, ok, "thresholds are inclusive, missing: %v", missing)
}

func TestMeetsCriteriaEachMissing(t *testing.T) {
	c := DefaultCriteria()
	tests := []struct {
		name   string
		mutate func(*patterns.LearnedPattern)
		expect string
	}{
		{"low confidence", func(p *patterns.LearnedPattern) { p.Confidence = 0.89 }, "confidence"},
		{"few successes", func(p *patterns.LearnedPattern) { p.SuccessCount = 4 }, "successCount"},
		{"single journey", func(p *patterns.LearnedPattern) { p.SourceJourneys = []string{"a"} }, "sourceJourneys"},
		{"too many failures", func(p *patterns.LearnedPattern) { p.FailCount = 3; p.SuccessCount = 30 }, "failCount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pattern(tt.mutate)
			ok, missing := MeetsCriteria(&p, c)
			assert.False(t, ok)
			assert.Contains(t, missing, tt.expect)
		})
	}
}

func TestAnalyzeClassifiesPatterns(t *testing.T) {
	store := patterns.NewStore(filepath.Join(t.TempDir(), "learned.json"), patterns.StoreOptions{})
	doc := &patterns.Document{Patterns: []patterns.LearnedPattern{
		pattern(func(p *patterns.LearnedPattern) { p.ID = "ready" }),
		pattern(func(p *patterns.LearnedPattern) {
			p.ID = "near"
			p.NormalizedText = "fill the email field"
			p.SuccessCount = 4 // misses successCount only
		}),
		pattern(func(p *patterns.LearnedPattern) {
			p.ID = "cold"
			p.NormalizedText = "hover the menu"
			p.SuccessCount = 1
			p.Confidence = 0.4
			p.SourceJourneys = nil
		}),
		pattern(func(p *patterns.LearnedPattern) {
			p.ID = "done"
			p.PromotedToCore = true
		}),
	}}
	require.NoError(t, store.Save(doc))

	report, err := NewAnalyzer(store, DefaultCriteria()).Analyze(false)
	require.NoError(t, err)

	require.Len(t, report.Promotable, 1)
	assert.Equal(t, "ready", report.Promotable[0].PatternID)

	require.Len(t, report.NearPromotion, 1)
	assert.Equal(t, "near", report.NearPromotion[0].PatternID)
	// One more success closes the count gap but leaves the rate at 5/6;
	// two reach both thresholds.
	assert.Equal(t, 2, report.NearPromotion[0].SuccessesToPromotion)

	require.Len(t, report.NeedsMoreData, 1)
	assert.Equal(t, "cold", report.NeedsMoreData[0].PatternID)
}

func TestAnalyzeMarkPromotedFlagsStore(t *testing.T) {
	store := patterns.NewStore(filepath.Join(t.TempDir(), "learned.json"), patterns.StoreOptions{})
	require.NoError(t, store.Save(&patterns.Document{Patterns: []patterns.LearnedPattern{pattern(nil)}}))

	report, err := NewAnalyzer(store, DefaultCriteria()).Analyze(true)
	require.NoError(t, err)
	require.Len(t, report.Promotable, 1)

	doc, err := store.Load()
	require.NoError(t, err)
	assert.True(t, doc.Patterns[0].PromotedToCore)

	// A second pass has nothing left to promote.
	report, err = NewAnalyzer(store, DefaultCriteria()).Analyze(true)
	require.NoError(t, err)
	assert.Empty(t, report.Promotable)
}

func TestDefinitionNameDeterministic(t *testing.T) {
	a := DefinitionName("click the login button", primitive.ActionClick)
	b := DefinitionName("click the login button", primitive.ActionClick)
	assert.Equal(t, a, b)
	assert.Equal(t, "click_the_login_button_click", a)

	assert.NotEqual(t, a, DefinitionName("click the login button", primitive.ActionHover),
		"the action type disambiguates equal text")
}

func TestDefinitionNameSlugging(t *testing.T) {
	assert.Equal(t, "fill_the_e_mail_field_fill",
		DefinitionName("fill the e-mail field!", primitive.ActionFill))
	assert.Equal(t, "pattern_click", DefinitionName("!!!", primitive.ActionClick))

	long := DefinitionName(
		"click the very long button label that keeps going and going and going",
		primitive.ActionClick)
	assert.LessOrEqual(t, len(long), 48+len("_click")+1)
}

func TestMatchExpression(t *testing.T) {
	expr := MatchExpression("click the (primary) button")
	assert.Equal(t, `(?i)^click\s+the\s+\(primary\)\s+button$`, expr)
}

func TestBuildDefinitionUnknownActionBlocked(t *testing.T) {
	p := pattern(func(p *patterns.LearnedPattern) {
		p.Primitive = primitive.Action{Type: primitive.ActionUnknown, Value: "teleport"}
	})
	def := BuildDefinition(&p)
	assert.Contains(t, def.Extraction, "manual definition required")
}

func TestSuccessesToPromotionCountGap(t *testing.T) {
	c := DefaultCriteria()
	p := pattern(func(p *patterns.LearnedPattern) {
		p.SuccessCount = 3
		p.FailCount = 0
		p.Confidence = patterns.WilsonScore(3, 0)
	})
	got := successesToPromotion(&p, c)
	assert.GreaterOrEqual(t, got, 2, "at least the raw count gap")
}
