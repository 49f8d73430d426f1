package availability

import (
	"sync"
	"time"

	"github.com/ovhfleet/acquire/pkg/account"
)

// cacheTTL bounds how long a probe result is reused before a fresh call to
// OVH is required (spec.md §4.4: "TTL ≤ 30s ... to coalesce duplicate probes
// across C5 and C6 within one tick, not to batch across ticks").
const cacheTTL = 30 * time.Second

// maxCacheEntries bounds memory; per spec.md §9's design note, a plain
// concurrent map with per-entry expiry suffices — no LRU library is needed.
const maxCacheEntries = 256

type cacheKey struct {
	region      account.EndpointRegion
	planCode    string
	fingerprint string
}

type cacheEntry struct {
	result    map[string]State
	expiresAt time.Time
}

// cache is a bounded, concurrency-safe TTL cache keyed by
// (account region, plan code, option fingerprint).
type cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[cacheKey]cacheEntry)}
}

func (c *cache) get(key cacheKey) (map[string]State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

func (c *cache) set(key cacheKey, result map[string]State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= maxCacheEntries {
		// Bounded eviction: drop one arbitrary entry. Go's map iteration
		// order is randomized, which is sufficient — there is no access-
		// frequency tracking to justify a real LRU here.
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}

	c.entries[key] = cacheEntry{result: result, expiresAt: time.Now().Add(cacheTTL)}
}
