package store

import (
	"sync"
	"time"
)

// DefaultComplexTTL bounds how stale a prefetched complex list may get.
const DefaultComplexTTL = 5 * time.Minute

// ComplexCache is an in-memory per-user cache of complex lists. It exists so
// callers can prefetch complexes once per session instead of hitting the
// store on every chart render. Single-process only.
type ComplexCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]complexEntry
}

type complexEntry struct {
	complexes []*Complex
	expires   time.Time
}

// NewComplexCache returns a cache with the given TTL. A zero ttl uses
// DefaultComplexTTL; a nil now uses time.Now.
func NewComplexCache(ttl time.Duration, now func() time.Time) *ComplexCache {
	if ttl <= 0 {
		ttl = DefaultComplexTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ComplexCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]complexEntry),
	}
}

// Get returns the cached complexes for userID, if present and fresh.
func (c *ComplexCache) Get(userID string) ([]*Complex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, userID)
		return nil, false
	}
	out := make([]*Complex, len(entry.complexes))
	copy(out, entry.complexes)
	return out, true
}

// Put stores complexes for userID, replacing any previous entry.
func (c *ComplexCache) Put(userID string, complexes []*Complex) {
	copied := make([]*Complex, len(complexes))
	copy(copied, complexes)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = complexEntry{
		complexes: copied,
		expires:   c.now().Add(c.ttl),
	}
}

// Invalidate drops the entry for userID. Called after any complex mutation.
func (c *ComplexCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
