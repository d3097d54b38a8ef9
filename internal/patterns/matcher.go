package patterns

import (
	"testmend/internal/logging"
)

// Match option defaults.
const (
	DefaultMinConfidence = 0.5
	DefaultMinSimilarity = 0.7
)

// MatchOptions tunes a single match query. The zero value is not usable
// directly; call DefaultMatchOptions and override.
type MatchOptions struct {
	MinConfidence float64
	MinSimilarity float64
	UseFuzzy      bool
}

// DefaultMatchOptions returns the standard thresholds.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		MinConfidence: DefaultMinConfidence,
		MinSimilarity: DefaultMinSimilarity,
		UseFuzzy:      true,
	}
}

// Matcher resolves step text to the best-matching action across two sources:
// the learned store (reinforced, project-specific knowledge) and the
// discovered seed patterns (bulk template coverage in provenance layers).
type Matcher struct {
	store      *Store
	discovered []DiscoveredPattern
}

// NewMatcher creates a matcher over the store and seeded discovered patterns.
func NewMatcher(store *Store, discovered []DiscoveredPattern) *Matcher {
	return &Matcher{store: store, discovered: discovered}
}

// MatchPattern returns the best match for the given step text, or nil when
// neither source produces one (the caller falls back to a static library or
// flags the step unmapped).
//
// Learned and discovered sources are searched independently, exact before
// fuzzy within each. When both produce a match, discovered wins only when its
// confidence is at least the learned one's: app-specific seeded knowledge
// should still outrank generic templates, but reinforced project knowledge is
// preferred on ties going the other way.
func (m *Matcher) MatchPattern(text string, opts MatchOptions) (*PatternMatch, error) {
	timer := logging.StartTimer(logging.CategoryMatcher, "Matcher.MatchPattern")
	defer timer.Stop()

	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, nil
	}

	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	learned := m.matchLearned(doc, normalized, opts)
	discovered := m.matchDiscovered(normalized, opts)

	switch {
	case learned == nil && discovered == nil:
		logging.MatcherDebug("No match for %q", normalized)
		return nil, nil
	case learned == nil:
		logging.Matcher("Matched %q from discovered patterns (id=%s, confidence=%.3f)",
			normalized, discovered.PatternID, discovered.Confidence)
		return discovered, nil
	case discovered == nil:
		logging.Matcher("Matched %q from learned patterns (id=%s, confidence=%.3f)",
			normalized, learned.PatternID, learned.Confidence)
		return learned, nil
	case discovered.Confidence >= learned.Confidence:
		logging.Matcher("Matched %q: discovered (%.3f) over learned (%.3f)",
			normalized, discovered.Confidence, learned.Confidence)
		return discovered, nil
	default:
		logging.Matcher("Matched %q: learned (%.3f) over discovered (%.3f)",
			normalized, learned.Confidence, discovered.Confidence)
		return learned, nil
	}
}

// matchLearned searches the learned patterns: an exact normalized-text match
// short-circuits; otherwise a fuzzy scan keeps the best similarity at or
// above the threshold, discounting confidence by similarity. Promoted
// patterns are excluded from runtime matching.
func (m *Matcher) matchLearned(doc *Document, normalized string, opts MatchOptions) *PatternMatch {
	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		if p.PromotedToCore || p.Confidence < opts.MinConfidence {
			continue
		}
		if p.NormalizedText == normalized {
			return &PatternMatch{
				PatternID:  p.ID,
				Primitive:  p.Primitive,
				Confidence: p.Confidence,
				Source:     "learned",
				Similarity: 1.0,
			}
		}
	}

	if !opts.UseFuzzy {
		return nil
	}

	var best *PatternMatch
	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		if p.PromotedToCore || p.Confidence < opts.MinConfidence {
			continue
		}
		sim := Similarity(normalized, p.NormalizedText)
		if sim < opts.MinSimilarity {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &PatternMatch{
				PatternID:  p.ID,
				Primitive:  p.Primitive,
				Confidence: p.Confidence * sim,
				Source:     "learned",
				Similarity: sim,
			}
		}
	}
	return best
}

// matchDiscovered searches the seeded patterns. Exact matches are collected
// across layers and the winner is the highest layer priority, then highest
// confidence. Only when no exact match exists does the fuzzy scan run,
// preferring higher layer, then higher similarity. An exact match on a lower
// layer therefore always beats a fuzzy match on a higher one.
func (m *Matcher) matchDiscovered(normalized string, opts MatchOptions) *PatternMatch {
	var bestExact *DiscoveredPattern
	for i := range m.discovered {
		d := &m.discovered[i]
		if d.Confidence < opts.MinConfidence || d.NormalizedText != normalized {
			continue
		}
		if bestExact == nil ||
			layerPriority(d.Layer) > layerPriority(bestExact.Layer) ||
			(layerPriority(d.Layer) == layerPriority(bestExact.Layer) && d.Confidence > bestExact.Confidence) {
			bestExact = d
		}
	}
	if bestExact != nil {
		return &PatternMatch{
			PatternID:  bestExact.ID,
			Primitive:  bestExact.ResolvedPrimitive(),
			Confidence: bestExact.Confidence,
			Source:     "discovered",
			Similarity: 1.0,
		}
	}

	if !opts.UseFuzzy {
		return nil
	}

	var bestFuzzy *DiscoveredPattern
	var bestSim float64
	for i := range m.discovered {
		d := &m.discovered[i]
		if d.Confidence < opts.MinConfidence {
			continue
		}
		sim := Similarity(normalized, d.NormalizedText)
		if sim < opts.MinSimilarity {
			continue
		}
		if bestFuzzy == nil ||
			layerPriority(d.Layer) > layerPriority(bestFuzzy.Layer) ||
			(layerPriority(d.Layer) == layerPriority(bestFuzzy.Layer) && sim > bestSim) {
			bestFuzzy = d
			bestSim = sim
		}
	}
	if bestFuzzy == nil {
		return nil
	}
	return &PatternMatch{
		PatternID:  bestFuzzy.ID,
		Primitive:  bestFuzzy.ResolvedPrimitive(),
		Confidence: bestFuzzy.Confidence * bestSim,
		Source:     "discovered",
		Similarity: bestSim,
	}
}
