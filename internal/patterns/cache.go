package patterns

import (
	"sync"
	"time"
)

// Clock abstracts time for the cache so tests can control TTL expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// DefaultCacheTTL bounds how stale an unlocked read may be.
const DefaultCacheTTL = 5 * time.Second

// DocCache is an explicitly owned TTL cache for the loaded pattern document.
// It is constructed once per process and shared by reference between the
// Store and the Matcher; there is no package-level cache state. Reads outside
// a write transaction may be stale by up to the TTL, which is acceptable
// because matching is advisory and a fallback path always exists.
type DocCache struct {
	mu       sync.RWMutex
	clock    Clock
	ttl      time.Duration
	doc      *Document
	loadedAt time.Time
}

// NewDocCache creates a cache with the given TTL. A nil clock uses the
// system clock; a non-positive TTL uses DefaultCacheTTL.
func NewDocCache(ttl time.Duration, clock Clock) *DocCache {
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &DocCache{clock: clock, ttl: ttl}
}

// Get returns the cached document if it is still fresh.
func (c *DocCache) Get() (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.doc == nil {
		return nil, false
	}
	if c.clock.Now().Sub(c.loadedAt) > c.ttl {
		return nil, false
	}
	return c.doc, true
}

// Put stores a freshly loaded document.
func (c *DocCache) Put(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	c.loadedAt = c.clock.Now()
}

// Invalidate drops the cached document. Called on every write so the next
// read observes the new on-disk state.
func (c *DocCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = nil
}
