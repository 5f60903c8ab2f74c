package service

import (
	"sync"
	"time"

	"pix-wallet-service/internal/core/domain"
)

type cachedRecord struct {
	record   *domain.IdempotencyRecord
	cachedAt time.Time
}

// recordCache is the in-process read path for idempotency records. A
// hit skips both Redis and the database; entries age out after the
// cache TTL even when the record itself is still live.
type recordCache struct {
	mu      sync.Mutex
	entries map[string]cachedRecord
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newRecordCache(ttl time.Duration, maxSize int) *recordCache {
	return &recordCache{
		entries: make(map[string]cachedRecord),
		ttl:     ttl,
		maxSize: maxSize,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(scope, key string) string {
	return scope + ":" + key
}

// Get returns the cached record, or nil when it is absent, aged out of
// the cache, or expired as a record.
func (c *recordCache) Get(scope, key string) *domain.IdempotencyRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(scope, key)]
	if !ok {
		return nil
	}
	now := c.now()
	if now.After(entry.cachedAt.Add(c.ttl)) || entry.record.IsExpired(now) {
		delete(c.entries, cacheKey(scope, key))
		return nil
	}
	return entry.record
}

// Put stores the record. When the cache is over its cap the expired
// entries are dropped first.
func (c *recordCache) Put(scope, key string, record *domain.IdempotencyRecord) {
	c.mu.Lock()
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
	}
	c.entries[cacheKey(scope, key)] = cachedRecord{record: record, cachedAt: c.now()}
	c.mu.Unlock()
}

func (c *recordCache) Remove(scope, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(scope, key))
}

func (c *recordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup drops aged and expired entries, returning the removal count.
func (c *recordCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked()
}

func (c *recordCache) evictExpiredLocked() int {
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.cachedAt.Add(c.ttl)) || entry.record.IsExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
