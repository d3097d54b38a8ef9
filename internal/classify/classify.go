// Package classify turns raw test-run reports into coarse failure categories.
// It is the default implementation of the healing loop's Classifier
// collaborator: keyword and pattern scoring over the report text, with a
// closed category taxonomy and an explicit unknown fallback.
package classify

import (
	"regexp"
	"strings"

	"testmend/internal/logging"
)

// Category is the closed failure taxonomy.
type Category string

const (
	CategorySelector   Category = "selector"
	CategoryTiming     Category = "timing"
	CategoryNavigation Category = "navigation"
	CategoryAssertion  Category = "assertion"
	CategoryNetwork    Category = "network"
	CategoryAuth       Category = "auth"
	CategoryEnv        Category = "env"
	CategoryUnknown    Category = "unknown"
)

// Classification is the classifier's verdict over one failure report.
type Classification struct {
	Category        Category `json:"category"`
	Confidence      float64  `json:"confidence"`
	Explanation     string   `json:"explanation"`
	Suggestion      string   `json:"suggestion"`
	IsTestIssue     bool     `json:"isTestIssue"`
	MatchedKeywords []string `json:"matchedKeywords"`
}

// rule scores one category. Keywords are matched case-insensitively as
// substrings; patterns cover the shapes keywords cannot.
type rule struct {
	category    Category
	keywords    []string
	patterns    []*regexp.Regexp
	suggestion  string
	isTestIssue bool
}

var rules = []rule{
	{
		category: CategorySelector,
		keywords: []string{
			"element not found", "no element matches", "selector resolved to",
			"strict mode violation", "locator", "not attached", "detached from the dom",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)waiting for (locator|selector)`),
			regexp.MustCompile(`(?i)unable to (find|locate) element`),
		},
		suggestion:  "Refine the selector or switch to a more stable locator strategy",
		isTestIssue: true,
	},
	{
		category: CategoryTiming,
		keywords: []string{
			"timeout", "timed out", "exceeded while", "still waiting",
			"not stable", "animation",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)exceeded \d+m?s`),
		},
		suggestion:  "Add an await on the triggering action or increase the step timeout",
		isTestIssue: true,
	},
	{
		category: CategoryNavigation,
		keywords: []string{
			"navigation", "page closed", "frame was detached", "goto",
			"err_aborted", "net::err_connection",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)navigat(ing|ion) to .* failed`),
		},
		suggestion:  "Wait for the navigation to settle before the next step",
		isTestIssue: true,
	},
	{
		category: CategoryAssertion,
		keywords: []string{
			"expect(", "assertion failed", "received string", "expected string",
			"tohavetext", "tobevisible", "tohaveurl",
		},
		suggestion:  "Re-check the expected value; the page content may have legitimately changed",
		isTestIssue: true,
	},
	{
		category: CategoryNetwork,
		keywords: []string{
			"econnreset", "socket hang up", "fetch failed", "502", "503", "504",
		},
		suggestion:  "Transient network failure; re-run before attempting repairs",
		isTestIssue: false,
	},
	{
		category: CategoryAuth,
		keywords: []string{
			"401", "403", "unauthorized", "forbidden", "login", "csrf",
			"session expired", "authentication",
		},
		suggestion:  "Fix credentials or the auth setup fixture; this is not repairable by the engine",
		isTestIssue: false,
	},
	{
		category: CategoryEnv,
		keywords: []string{
			"econnrefused", "browser executable", "missing dependency",
			"command not found", "500 internal server error", "out of memory",
		},
		suggestion:  "Fix the test environment; this is not repairable by the engine",
		isTestIssue: false,
	},
}

// ClassifyReport classifies a raw failure report. An empty report yields nil
// (unclassifiable); otherwise the best-scoring category wins, falling back to
// unknown with low confidence when nothing matches.
func ClassifyReport(report string) *Classification {
	timer := logging.StartTimer(logging.CategoryClassify, "ClassifyReport")
	defer timer.Stop()

	if strings.TrimSpace(report) == "" {
		logging.ClassifyDebug("Empty report, unclassifiable")
		return nil
	}

	lower := strings.ToLower(report)

	var best *Classification
	bestScore := 0
	for _, r := range rules {
		var matched []string
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		for _, p := range r.patterns {
			if m := p.FindString(report); m != "" {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 || len(matched) <= bestScore {
			continue
		}
		bestScore = len(matched)
		best = &Classification{
			Category:        r.category,
			Confidence:      keywordConfidence(len(matched)),
			Explanation:     explanationFor(r.category, matched),
			Suggestion:      r.suggestion,
			IsTestIssue:     r.isTestIssue,
			MatchedKeywords: matched,
		}
	}

	if best == nil {
		best = &Classification{
			Category:    CategoryUnknown,
			Confidence:  0.2,
			Explanation: "No known failure signature matched the report",
			Suggestion:  "Inspect the report manually",
			IsTestIssue: false,
		}
	}

	logging.Classify("Classified failure as %s (confidence=%.2f, keywords=%v)",
		best.Category, best.Confidence, best.MatchedKeywords)
	return best
}

// keywordConfidence maps match count to confidence, capped below certainty.
func keywordConfidence(matches int) float64 {
	c := 0.5 + 0.15*float64(matches)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func explanationFor(cat Category, matched []string) string {
	return "Report matched " + string(cat) + " signatures: " + strings.Join(matched, ", ")
}
