package cache

import (
	"sync"
	"time"
)

// Cache is an in-process map whose entries expire after a TTL. Expired entries
// are evicted lazily on read or by Sweep. It backs idempotency records when
// Redis is not configured.
type Cache[V any] struct {
	mu         sync.RWMutex
	defaultTTL time.Duration
	items      map[string]item[V]
	now        func() time.Time
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (it item[V]) expired(at time.Time) bool {
	return at.After(it.expiresAt)
}

// New returns an empty cache; a non-positive ttl falls back to five seconds.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Cache[V]{
		defaultTTL: ttl,
		items:      make(map[string]item[V]),
		now:        time.Now,
	}
}

func (c *Cache[V]) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

func (c *Cache[V]) Get(key string) (V, bool) {
	at := c.now()

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if it.expired(at) {
		c.mu.Lock()
		// a writer may have refreshed the entry between the two locks
		if cur, ok := c.items[key]; ok && cur.expired(at) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return it.value, true
}

// Set stores v for ttl, or for the cache default when ttl <= 0.
func (c *Cache[V]) Set(key string, v V, ttl time.Duration) {
	exp := c.now().Add(c.ttlOrDefault(ttl))

	c.mu.Lock()
	c.items[key] = item[V]{value: v, expiresAt: exp}
	c.mu.Unlock()
}

// SetNX stores v only when key is absent or expired and reports whether it did.
func (c *Cache[V]) SetNX(key string, v V, ttl time.Duration) bool {
	at := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && !it.expired(at) {
		return false
	}
	c.items[key] = item[V]{value: v, expiresAt: at.Add(c.ttlOrDefault(ttl))}
	return true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	at := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, it := range c.items {
		if it.expired(at) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired ones included until they are evicted.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
