package classify

import (
	"context"
	"sync"
	"time"
)

// Cache is the advisory description-to-category cache. A miss or an error
// only costs latency, never correctness, so implementations are free to
// drop entries at any time. Keys are normalized descriptions.
type Cache interface {
	Get(ctx context.Context, key string) (categoryID int64, ok bool, err error)
	Set(ctx context.Context, key string, categoryID int64) error
}

type cacheEntry struct {
	categoryID int64
	expiresAt  time.Time
}

// MemoryCache is an in-process TTL cache, safe for concurrent use. It is
// suitable for single-instance deployments; a shared cache service can
// implement Cache for multi-instance setups.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Cache. Expired entries are treated as misses and removed.
func (c *MemoryCache) Get(ctx context.Context, key string) (int64, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return 0, false, nil
	}
	return entry.categoryID, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, categoryID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{categoryID: categoryID, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Len returns the number of live entries, counting not-yet-evicted expired
// ones. Used by tests and debug endpoints.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
