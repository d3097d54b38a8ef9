// Package patterns implements the learned/discovered pattern knowledge base:
// a JSON-document store with advisory file locking, a TTL read cache, the
// Wilson-bound confidence estimator, and the layered fuzzy matcher that
// resolves natural-language step text to structured UI actions.
package patterns

import (
	"encoding/json"
	"fmt"
	"time"

	"testmend/internal/primitive"
)

// StoreVersion is written into every saved pattern document.
const StoreVersion = "2"

// Layer is the provenance tier of a discovered (seeded) pattern.
// Higher tiers win matching tie-breaks.
type Layer string

const (
	LayerAppSpecific Layer = "app-specific"
	LayerFramework   Layer = "framework"
	LayerUniversal   Layer = "universal"
)

// layerPriority orders layers for tie-breaking. Unknown layers rank lowest.
func layerPriority(l Layer) int {
	switch l {
	case LayerAppSpecific:
		return 3
	case LayerFramework:
		return 2
	case LayerUniversal:
		return 1
	default:
		return 0
	}
}

// LearnedPattern is one reinforced mapping from step text to a UI action.
// Confidence is always derived from the success/fail counters via the Wilson
// estimator; it is never stored authoritatively except as a cached value.
type LearnedPattern struct {
	ID             string           `json:"id"`
	OriginalText   string           `json:"originalText"`
	NormalizedText string           `json:"normalizedText"`
	Primitive      primitive.Action `json:"mappedPrimitive"`
	Confidence     float64          `json:"confidence"`
	SourceJourneys []string         `json:"sourceJourneys"`
	SuccessCount   int              `json:"successCount"`
	FailCount      int              `json:"failCount"`
	LastUsed       time.Time        `json:"lastUsed"`
	CreatedAt      time.Time        `json:"createdAt"`
	PromotedToCore bool             `json:"promotedToCore"`
	PromotedAt     *time.Time       `json:"promotedAt,omitempty"`
}

// SuccessRate returns successes over total observations, 0 with no data.
func (p *LearnedPattern) SuccessRate() float64 {
	total := p.SuccessCount + p.FailCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// HasJourney reports whether the journey id is already recorded as provenance.
func (p *LearnedPattern) HasJourney(id string) bool {
	for _, j := range p.SourceJourneys {
		if j == id {
			return true
		}
	}
	return false
}

// DiscoveredPattern is a bulk-seeded template mapping. It shares the learned
// shape plus a provenance layer and category. Several discovered patterns may
// share a normalized text across layers.
type DiscoveredPattern struct {
	ID             string                    `json:"id" yaml:"id"`
	OriginalText   string                    `json:"originalText" yaml:"text"`
	NormalizedText string                    `json:"normalizedText" yaml:"-"`
	Primitive      primitive.Action          `json:"mappedPrimitive" yaml:"action"`
	ActionTag      string                    `json:"actionTag,omitempty" yaml:"action_tag,omitempty"`
	SelectorHints  []primitive.SelectorHint  `json:"selectorHints,omitempty" yaml:"selector_hints,omitempty"`
	Layer          Layer                     `json:"layer" yaml:"layer"`
	Category       string                    `json:"category" yaml:"category"`
	Confidence     float64                   `json:"confidence" yaml:"confidence"`
}

// ResolvedPrimitive returns the rich action, reconstructing it from the bare
// tag and selector hints when the seed pack stored only the tag.
func (d *DiscoveredPattern) ResolvedPrimitive() primitive.Action {
	if d.Primitive.Type != "" {
		return d.Primitive
	}
	return primitive.FromTypeTag(d.ActionTag, d.SelectorHints)
}

// PatternMatch is the matcher's output. For fuzzy hits Confidence is the
// pattern's base confidence discounted by textual similarity.
type PatternMatch struct {
	PatternID  string
	Primitive  primitive.Action
	Confidence float64
	Source     string  // "learned" or "discovered"
	Similarity float64 // 1.0 for exact matches
}

// Document is the persisted pattern store shape:
// {version, lastUpdated, patterns: [...]}.
type Document struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"lastUpdated"`
	Patterns    []LearnedPattern `json:"patterns"`
}

// patternRecord handles the shape polymorphism of persisted records. A record
// is either the rich shape (object-typed mappedPrimitive) or the legacy shape
// (string-tagged mappedPrimitive plus separate selectorHints). The capability
// check happens at deserialization time, not by duck-typing downstream.
type patternRecord struct {
	ID             string                   `json:"id"`
	OriginalText   string                   `json:"originalText"`
	NormalizedText string                   `json:"normalizedText"`
	MappedRaw      json.RawMessage          `json:"mappedPrimitive"`
	SelectorHints  []primitive.SelectorHint `json:"selectorHints,omitempty"`
	Confidence     float64                  `json:"confidence"`
	SourceJourneys []string                 `json:"sourceJourneys"`
	SuccessCount   int                      `json:"successCount"`
	FailCount      int                      `json:"failCount"`
	LastUsed       time.Time                `json:"lastUsed"`
	CreatedAt      time.Time                `json:"createdAt"`
	PromotedToCore bool                     `json:"promotedToCore"`
	PromotedAt     *time.Time               `json:"promotedAt,omitempty"`
}

// toLearned upgrades a raw record to the rich in-memory shape. Legacy records
// are reconstructed through primitive.FromTypeTag, which is total - an
// unrecognized tag becomes an explicit unknown action, never a nil.
func (r *patternRecord) toLearned() (LearnedPattern, error) {
	p := LearnedPattern{
		ID:             r.ID,
		OriginalText:   r.OriginalText,
		NormalizedText: r.NormalizedText,
		Confidence:     r.Confidence,
		SourceJourneys: r.SourceJourneys,
		SuccessCount:   r.SuccessCount,
		FailCount:      r.FailCount,
		LastUsed:       r.LastUsed,
		CreatedAt:      r.CreatedAt,
		PromotedToCore: r.PromotedToCore,
		PromotedAt:     r.PromotedAt,
	}

	if len(r.MappedRaw) == 0 {
		return p, fmt.Errorf("record %s: missing mappedPrimitive", r.ID)
	}

	// Capability check: object-typed action field means the rich shape.
	switch r.MappedRaw[0] {
	case '{':
		if err := json.Unmarshal(r.MappedRaw, &p.Primitive); err != nil {
			return p, fmt.Errorf("record %s: invalid mappedPrimitive object: %w", r.ID, err)
		}
	case '"':
		var tag string
		if err := json.Unmarshal(r.MappedRaw, &tag); err != nil {
			return p, fmt.Errorf("record %s: invalid mappedPrimitive tag: %w", r.ID, err)
		}
		p.Primitive = primitive.FromTypeTag(tag, r.SelectorHints)
	default:
		return p, fmt.Errorf("record %s: mappedPrimitive is neither object nor string", r.ID)
	}

	if p.NormalizedText == "" {
		p.NormalizedText = NormalizeText(p.OriginalText)
	}
	return p, nil
}
