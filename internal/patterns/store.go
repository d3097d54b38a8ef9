package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"testmend/internal/logging"
	"testmend/internal/primitive"
)

// StoreOptions configures the pattern store's cache and lock behavior.
// Zero values fall back to the package defaults.
type StoreOptions struct {
	CacheTTL    time.Duration
	LockStale   time.Duration
	LockMaxWait time.Duration
	LockRetry   time.Duration
	Clock       Clock
}

// Store is the persistence layer for learned patterns: one JSON document,
// atomic save via temp-file rename, and an advisory sidecar lock around every
// read-modify-write. Multiple CLI processes may race on the same file; all
// mutation funnels through mutate().
type Store struct {
	path  string
	cache *DocCache
	lock  *FileLock
	clock Clock
}

// NewStore creates a store for the document at path.
func NewStore(path string, opts StoreOptions) *Store {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		path:  path,
		cache: NewDocCache(opts.CacheTTL, clock),
		lock:  NewFileLock(path, opts.LockStale, opts.LockMaxWait, opts.LockRetry, clock),
		clock: clock,
	}
}

// Path returns the store document path.
func (s *Store) Path() string { return s.path }

// Cache exposes the TTL cache so a Matcher can share it.
func (s *Store) Cache() *DocCache { return s.cache }

// Load returns the pattern document, serving from the TTL cache when fresh.
// A missing or malformed file is treated as an empty document with a warning;
// corruption is never surfaced to the caller as an error.
func (s *Store) Load() (*Document, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Store.Load")
	defer timer.Stop()

	if doc, ok := s.cache.Get(); ok {
		logging.StoreDebug("Load served from cache (%d patterns)", len(doc.Patterns))
		return doc, nil
	}

	doc := s.readDocument()
	s.cache.Put(doc)
	return doc, nil
}

// readDocument reads and upgrades the on-disk document. All failure modes
// degrade to an empty document.
func (s *Store) readDocument() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryStore).Warn("Failed to read %s: %v (treating as empty)", s.path, err)
		}
		return &Document{Version: StoreVersion}
	}

	var raw struct {
		Version     string          `json:"version"`
		LastUpdated time.Time       `json:"lastUpdated"`
		Patterns    []patternRecord `json:"patterns"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Get(logging.CategoryStore).Warn("Malformed pattern store %s: %v (treating as empty)", s.path, err)
		return &Document{Version: StoreVersion}
	}

	doc := &Document{
		Version:     raw.Version,
		LastUpdated: raw.LastUpdated,
		Patterns:    make([]LearnedPattern, 0, len(raw.Patterns)),
	}
	for i := range raw.Patterns {
		p, err := raw.Patterns[i].toLearned()
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping unreadable record: %v", err)
			continue
		}
		doc.Patterns = append(doc.Patterns, p)
	}

	logging.StoreDebug("Loaded %d patterns from %s", len(doc.Patterns), s.path)
	return doc
}

// Save writes the document atomically: write to a temp file in the same
// directory, then rename over the target. Write failures clean up the temp
// artifact and propagate; there are never partial files at the target path.
func (s *Store) Save(doc *Document) error {
	timer := logging.StartTimer(logging.CategoryStore, "Store.Save")
	defer timer.Stop()

	doc.Version = StoreVersion
	doc.LastUpdated = s.clock.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pattern store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write pattern store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync pattern store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace pattern store: %w", err)
	}

	s.cache.Invalidate()
	logging.Store("Saved %d patterns to %s", len(doc.Patterns), s.path)
	return nil
}

// mutate runs fn on the freshly read document under the advisory lock, then
// saves. The cache is bypassed for the read: a read-modify-write must see the
// latest on-disk state, not a TTL-stale snapshot.
func (s *Store) mutate(op string, fn func(doc *Document) error) error {
	timer := logging.StartTimer(logging.CategoryStore, op)
	defer timer.Stop()

	// The sidecar lock lives next to the document; both need the directory.
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%s: failed to create store directory: %w", op, err)
	}

	held, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer s.lock.Release(held)

	doc := s.readDocument()
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}

// RecordSuccess records a successful use of the mapping text -> action.
// The first success creates the pattern; later successes increment the
// counter, refresh provenance, and recompute confidence from the counters.
func (s *Store) RecordSuccess(text string, action primitive.Action, journeyID string) error {
	normalized := NormalizeText(text)
	if normalized == "" {
		return fmt.Errorf("cannot record success for empty step text")
	}

	return s.mutate("Store.RecordSuccess", func(doc *Document) error {
		now := s.clock.Now().UTC()

		for i := range doc.Patterns {
			p := &doc.Patterns[i]
			if p.NormalizedText != normalized {
				continue
			}
			p.SuccessCount++
			p.LastUsed = now
			if journeyID != "" && !p.HasJourney(journeyID) {
				p.SourceJourneys = append(p.SourceJourneys, journeyID)
			}
			p.Confidence = WilsonScore(p.SuccessCount, p.FailCount)
			logging.Store("Pattern reinforced: %q (successes=%d, confidence=%.3f)",
				p.NormalizedText, p.SuccessCount, p.Confidence)
			return nil
		}

		p := LearnedPattern{
			ID:             uuid.New().String(),
			OriginalText:   text,
			NormalizedText: normalized,
			Primitive:      action,
			SuccessCount:   1,
			LastUsed:       now,
			CreatedAt:      now,
		}
		if journeyID != "" {
			p.SourceJourneys = []string{journeyID}
		}
		p.Confidence = WilsonScore(p.SuccessCount, p.FailCount)
		doc.Patterns = append(doc.Patterns, p)
		logging.Store("Pattern learned: %q -> %s (confidence=%.3f)",
			p.NormalizedText, p.Primitive.Type, p.Confidence)
		return nil
	})
}

// RecordFailure records a failed use of the mapping for text. Patterns are
// only created by successes; a failure for unknown text is a logged no-op.
func (s *Store) RecordFailure(text string, journeyID string) error {
	normalized := NormalizeText(text)
	if normalized == "" {
		return fmt.Errorf("cannot record failure for empty step text")
	}

	return s.mutate("Store.RecordFailure", func(doc *Document) error {
		now := s.clock.Now().UTC()

		for i := range doc.Patterns {
			p := &doc.Patterns[i]
			if p.NormalizedText != normalized {
				continue
			}
			p.FailCount++
			p.LastUsed = now
			if journeyID != "" && !p.HasJourney(journeyID) {
				p.SourceJourneys = append(p.SourceJourneys, journeyID)
			}
			p.Confidence = WilsonScore(p.SuccessCount, p.FailCount)
			logging.Store("Pattern failure recorded: %q (failures=%d, confidence=%.3f)",
				p.NormalizedText, p.FailCount, p.Confidence)
			return nil
		}

		logging.StoreDebug("Failure for unknown pattern %q ignored (patterns are created on success)", normalized)
		return nil
	})
}

// MarkPromoted flags a pattern as promoted to the static tier. Promoted
// patterns are excluded from runtime matching but retained for audit.
func (s *Store) MarkPromoted(id string) error {
	return s.mutate("Store.MarkPromoted", func(doc *Document) error {
		for i := range doc.Patterns {
			p := &doc.Patterns[i]
			if p.ID != id {
				continue
			}
			if p.PromotedToCore {
				return nil
			}
			now := s.clock.Now().UTC()
			p.PromotedToCore = true
			p.PromotedAt = &now
			logging.Promotion("Pattern promoted: %q (id=%s)", p.NormalizedText, id)
			return nil
		}
		return fmt.Errorf("pattern %s not found", id)
	})
}

// PruneOptions controls the explicit pruning pass. All conditions must hold
// for a pattern to be removed.
type PruneOptions struct {
	MaxAge        time.Duration // unused for longer than this
	MaxConfidence float64       // confidence at or below this
}

// DefaultPruneOptions prunes patterns unused for 60 days with confidence
// at or below 0.3 and no recorded success.
func DefaultPruneOptions() PruneOptions {
	return PruneOptions{
		MaxAge:        60 * 24 * time.Hour,
		MaxConfidence: 0.3,
	}
}

// Prune removes stale low-value patterns: older than MaxAge since last use,
// confidence at or below MaxConfidence, and zero successes. Promoted patterns
// are never pruned. Returns the number of patterns removed.
func (s *Store) Prune(opts PruneOptions) (int, error) {
	if opts.MaxAge <= 0 {
		opts = DefaultPruneOptions()
	}

	removed := 0
	err := s.mutate("Store.Prune", func(doc *Document) error {
		cutoff := s.clock.Now().Add(-opts.MaxAge)
		kept := doc.Patterns[:0]
		for _, p := range doc.Patterns {
			stale := !p.PromotedToCore &&
				p.SuccessCount == 0 &&
				p.Confidence <= opts.MaxConfidence &&
				p.LastUsed.Before(cutoff)
			if stale {
				removed++
				logging.Store("Pruned pattern %q (confidence=%.3f, last used %s)",
					p.NormalizedText, p.Confidence, p.LastUsed.Format(time.RFC3339))
				continue
			}
			kept = append(kept, p)
		}
		doc.Patterns = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Stats returns summary statistics about the stored patterns.
func (s *Store) Stats() (map[string]interface{}, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}

	stats := make(map[string]interface{})
	stats["total_patterns"] = len(doc.Patterns)
	stats["store_path"] = s.path
	stats["version"] = doc.Version

	promoted := 0
	var confidenceSum float64
	byType := make(map[string]int)
	for _, p := range doc.Patterns {
		if p.PromotedToCore {
			promoted++
		}
		confidenceSum += p.Confidence
		byType[string(p.Primitive.Type)]++
	}
	stats["promoted_patterns"] = promoted
	if len(doc.Patterns) > 0 {
		stats["avg_confidence"] = confidenceSum / float64(len(doc.Patterns))
	} else {
		stats["avg_confidence"] = 0.0
	}
	stats["by_action_type"] = byType

	return stats, nil
}
