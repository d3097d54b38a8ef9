package patterns

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// NormalizeText produces the canonical matching key for step text:
// case-folded with all whitespace runs collapsed to single spaces.
// Write-time and read-time normalization must be identical or exact
// matching silently degrades to fuzzy, so every store/matcher path
// funnels through this function.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Similarity scores the textual similarity of two strings in [0, 1].
// It blends normalized edit distance with token overlap (Jaccard), which
// keeps reordered-but-equivalent step phrasings ("click the submit button" /
// "click on submit button") close while penalizing genuinely different steps.
func Similarity(a, b string) float64 {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}

	edit := editRatio(na, nb)
	overlap := tokenOverlap(na, nb)

	// Edit distance dominates; token overlap rescues word reorderings.
	score := 0.6*edit + 0.4*overlap
	if score > 1 {
		score = 1
	}
	return score
}

// editRatio converts Levenshtein distance to a [0,1] similarity.
func editRatio(a, b string) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// tokenOverlap is the Jaccard index over whitespace tokens.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}

	intersection := 0
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			intersection++
		}
	}

	union := len(set) + len(seen) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
