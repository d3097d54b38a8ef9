// Package promote implements the batch promotion pipeline: statistically
// validated learned patterns are turned into compiled/static pattern
// definitions, and the rest are reported with how far off they are.
package promote

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"testmend/internal/logging"
	"testmend/internal/patterns"
	"testmend/internal/primitive"
)

// Criteria are the promotion thresholds. A pattern is promotable only when
// every threshold holds (all comparisons inclusive).
type Criteria struct {
	MinConfidence     float64 `json:"min_confidence" yaml:"min_confidence"`
	MinSuccessCount   int     `json:"min_success_count" yaml:"min_success_count"`
	MinSourceJourneys int     `json:"min_source_journeys" yaml:"min_source_journeys"`
	MaxFailCount      int     `json:"max_fail_count" yaml:"max_fail_count"`
	MinSuccessRate    float64 `json:"min_success_rate" yaml:"min_success_rate"`
}

// DefaultCriteria returns the standard promotion thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinConfidence:     0.9,
		MinSuccessCount:   5,
		MinSourceJourneys: 2,
		MaxFailCount:      2,
		MinSuccessRate:    0.85,
	}
}

// Status classifies a pattern's distance from promotion.
type Status string

const (
	StatusPromotable    Status = "promotable"
	StatusNearPromotion Status = "near-promotion"
	StatusNeedsMoreData Status = "needs-more-data"
)

// Definition is an emitted static-tier pattern: a deterministic name, a
// matching expression, and an extraction description for the code generator.
type Definition struct {
	PatternID       string               `json:"patternId"`
	Name            string               `json:"name"`
	MatchExpression string               `json:"matchExpression"`
	ActionType      primitive.ActionType `json:"actionType"`
	Extraction      string               `json:"extraction"`
}

// Evaluation is the per-pattern promotion verdict.
type Evaluation struct {
	PatternID            string   `json:"patternId"`
	Text                 string   `json:"text"`
	Status               Status   `json:"status"`
	MissingCriteria      []string `json:"missingCriteria,omitempty"`
	SuccessesToPromotion int      `json:"successesToPromotion,omitempty"`
}

// Report is the batch promotion output.
type Report struct {
	GeneratedAt   time.Time    `json:"generatedAt"`
	Promotable    []Definition `json:"promotable"`
	NearPromotion []Evaluation `json:"nearPromotion"`
	NeedsMoreData []Evaluation `json:"needsMoreData"`
}

// Analyzer runs promotion analysis over a pattern store.
type Analyzer struct {
	store    *patterns.Store
	criteria Criteria
}

// NewAnalyzer creates an analyzer with the given criteria.
func NewAnalyzer(store *patterns.Store, criteria Criteria) *Analyzer {
	return &Analyzer{store: store, criteria: criteria}
}

// MeetsCriteria reports whether the pattern clears every threshold, plus the
// list of criteria it misses.
func MeetsCriteria(p *patterns.LearnedPattern, c Criteria) (bool, []string) {
	var missing []string
	if p.Confidence < c.MinConfidence {
		missing = append(missing, "confidence")
	}
	if p.SuccessCount < c.MinSuccessCount {
		missing = append(missing, "successCount")
	}
	if len(p.SourceJourneys) < c.MinSourceJourneys {
		missing = append(missing, "sourceJourneys")
	}
	if p.FailCount > c.MaxFailCount {
		missing = append(missing, "failCount")
	}
	if p.SuccessRate() < c.MinSuccessRate {
		missing = append(missing, "successRate")
	}
	return len(missing) == 0, missing
}

// Analyze evaluates every unpromoted pattern and produces the report.
// When markPromoted is true, promotable patterns are flagged in the store
// through its locked write path.
func (a *Analyzer) Analyze(markPromoted bool) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryPromotion, "Analyzer.Analyze")
	defer timer.Stop()

	doc, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	report := &Report{GeneratedAt: time.Now().UTC()}
	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		if p.PromotedToCore {
			continue
		}

		ok, missing := MeetsCriteria(p, a.criteria)
		if ok {
			def := BuildDefinition(p)
			report.Promotable = append(report.Promotable, def)
			logging.Promotion("Promotable: %q -> %s", p.NormalizedText, def.Name)
			if markPromoted {
				if err := a.store.MarkPromoted(p.ID); err != nil {
					return nil, fmt.Errorf("failed to mark %s promoted: %w", p.ID, err)
				}
			}
			continue
		}

		eval := Evaluation{
			PatternID:       p.ID,
			Text:            p.OriginalText,
			MissingCriteria: missing,
		}
		// A pattern missing at most two criteria with some track record is
		// close enough to report with an estimate of the successes it still
		// needs; everything else just needs more data.
		if len(missing) <= 2 && p.SuccessCount >= 2 {
			eval.Status = StatusNearPromotion
			eval.SuccessesToPromotion = successesToPromotion(p, a.criteria)
			report.NearPromotion = append(report.NearPromotion, eval)
			logging.PromotionDebug("Near promotion: %q (missing %v, ~%d successes away)",
				p.NormalizedText, missing, eval.SuccessesToPromotion)
		} else {
			eval.Status = StatusNeedsMoreData
			report.NeedsMoreData = append(report.NeedsMoreData, eval)
		}
	}

	logging.Promotion("Promotion analysis: %d promotable, %d near, %d need data",
		len(report.Promotable), len(report.NearPromotion), len(report.NeedsMoreData))
	return report, nil
}

// successesToPromotion estimates how many additional consecutive successes
// would clear the success-fixable criteria (count, rate, confidence).
// Criteria a success cannot fix (journeys, accumulated failures) are ignored.
func successesToPromotion(p *patterns.LearnedPattern, c Criteria) int {
	needed := 0

	if p.SuccessCount < c.MinSuccessCount {
		needed = c.MinSuccessCount - p.SuccessCount
	}

	if p.SuccessRate() < c.MinSuccessRate && c.MinSuccessRate < 1 {
		// (s+k)/(s+k+f) >= r  =>  k >= (r*(s+f) - s) / (1-r)
		s, f, r := float64(p.SuccessCount), float64(p.FailCount), c.MinSuccessRate
		k := int(math.Ceil((r*(s+f) - s) / (1 - r)))
		if k > needed {
			needed = k
		}
	}

	if p.Confidence < c.MinConfidence {
		for k := needed; k <= 1000; k++ {
			if patterns.WilsonScore(p.SuccessCount+k, p.FailCount) >= c.MinConfidence {
				if k > needed {
					needed = k
				}
				break
			}
		}
	}

	return needed
}

// BuildDefinition emits the static-tier definition for a promotable pattern.
func BuildDefinition(p *patterns.LearnedPattern) Definition {
	return Definition{
		PatternID:       p.ID,
		Name:            DefinitionName(p.NormalizedText, p.Primitive.Type),
		MatchExpression: MatchExpression(p.NormalizedText),
		ActionType:      p.Primitive.Type,
		Extraction:      extractionFor(p.Primitive),
	}
}

var nameCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// DefinitionName derives a deterministic identifier from the pattern text and
// action type. The same text and type always produce the same name.
func DefinitionName(normalizedText string, action primitive.ActionType) string {
	slug := nameCleaner.ReplaceAllString(strings.ToLower(normalizedText), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 48 {
		slug = slug[:48]
		slug = strings.Trim(slug, "_")
	}
	if slug == "" {
		slug = "pattern"
	}
	return fmt.Sprintf("%s_%s", slug, action)
}

// MatchExpression generates a case-insensitive matching expression for the
// normalized text, tolerant of whitespace runs.
func MatchExpression(normalizedText string) string {
	words := strings.Fields(normalizedText)
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	return fmt.Sprintf(`(?i)^%s$`, strings.Join(escaped, `\s+`))
}

// extractionFor describes how a generator extracts parameters for each action
// type. The switch is exhaustive over the taxonomy; an unrecognized type
// degrades to an explicit blocked marker rather than being dropped.
func extractionFor(a primitive.Action) string {
	switch a.Type {
	case primitive.ActionClick:
		return fmt.Sprintf("click target selector %q", a.Selector)
	case primitive.ActionFill:
		return fmt.Sprintf("fill selector %q with captured value (default %q)", a.Selector, a.Value)
	case primitive.ActionNavigate:
		return fmt.Sprintf("navigate to captured URL (default %q)", a.URL)
	case primitive.ActionSelect:
		return fmt.Sprintf("select captured option in %q", a.Selector)
	case primitive.ActionCheck:
		return fmt.Sprintf("check selector %q", a.Selector)
	case primitive.ActionUncheck:
		return fmt.Sprintf("uncheck selector %q", a.Selector)
	case primitive.ActionHover:
		return fmt.Sprintf("hover selector %q", a.Selector)
	case primitive.ActionPress:
		return fmt.Sprintf("press key %q", a.Key)
	case primitive.ActionWaitFor:
		return fmt.Sprintf("wait for selector %q", a.Selector)
	case primitive.ActionAssertVisible:
		return fmt.Sprintf("assert selector %q visible", a.Selector)
	case primitive.ActionAssertText:
		return fmt.Sprintf("assert selector %q has captured text (default %q)", a.Selector, a.Value)
	case primitive.ActionAssertURL:
		return fmt.Sprintf("assert URL matches %q", a.URL)
	default:
		return fmt.Sprintf("blocked/unknown action type %q - manual definition required", a.Type)
	}
}
