package preview

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RenderCache is a concurrent-safe LRU cache of encoded PNG renders with TTL expiration.
type RenderCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	versions   map[string]string // stem -> source version of its cached renders
	order      []string // front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewRenderCache creates a cache holding at most maxEntries renders for ttl each. A
// non-positive ttl disables expiry.
func NewRenderCache(maxEntries int, ttl time.Duration) *RenderCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &RenderCache{
		entries:    make(map[string]*cacheEntry),
		versions:   make(map[string]string),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func cacheKey(stem string, width int) string {
	return stem + "@" + strconv.Itoa(width)
}

// Get returns a cached render, or nil on miss or expiration.
func (c *RenderCache) Get(stem string, width int) []byte {
	key := cacheKey(stem, width)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.data
}

// Put stores a render, evicting the least recently used entry when full.
func (c *RenderCache) Put(stem string, width int, data []byte) {
	key := cacheKey(stem, width)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &cacheEntry{data: data, createdAt: c.now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &cacheEntry{data: data, createdAt: c.now()}
	c.order = append(c.order, key)
}

// Refresh records version as the current source version of stem. When it differs from
// the version seen before, every cached render of stem is dropped and Refresh reports
// true.
func (c *RenderCache) Refresh(stem, version string) bool {
	c.mu.Lock()
	prev, seen := c.versions[stem]
	c.versions[stem] = version
	c.mu.Unlock()

	if !seen || prev == version {
		return false
	}
	c.Invalidate(stem)
	return true
}

// Invalidate drops every cached width of stem.
func (c *RenderCache) Invalidate(stem string) {
	prefix := stem + "@"

	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.order[:0]
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			continue
		}
		remaining = append(remaining, key)
	}
	c.order = remaining
}

// Stats returns cache performance statistics.
func (c *RenderCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *RenderCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
