package cache

import (
	"sync"
	"time"
)

// item is a cached value with its expiry
type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a small in-memory TTL cache keyed by string
type Cache[V any] struct {
	items map[string]item[V]
	mutex sync.RWMutex
	now   func() time.Time
}

// New creates a new cache instance
func New[V any]() *Cache[V] {
	return &Cache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
	}
}

// Get retrieves a value; expired entries are reported as missing and evicted
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	it, exists := c.items[key]
	c.mutex.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if c.now().After(it.expiresAt) {
		c.mutex.Lock()
		// re-check, a concurrent Set may have refreshed it
		if cur, ok := c.items[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return zero, false
	}

	return it.value, true
}

// Set stores a value with TTL
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = item[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// GetOrLoad returns the cached value or calls load and caches its result. Load errors
// are returned and nothing is cached.
func (c *Cache[V]) GetOrLoad(key string, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]item[V])
}
