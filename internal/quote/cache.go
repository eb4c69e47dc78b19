package quote

import (
	"sync"
	"time"
)

// Cache is a TTL cache with per-key single-flight refresh: concurrent
// callers for the same expired key share one refresh call, while callers
// for different keys never block each other.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*cacheEntry[V]
}

type cacheEntry[V any] struct {
	mu        sync.Mutex
	value     V
	fetchedAt time.Time
	valid     bool
}

// NewCache creates an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*cacheEntry[V]),
	}
}

// GetOrRefresh returns the cached value for key if it is fresher than ttl,
// otherwise calls refresh and caches the result. A refresh error leaves
// any previous value invalidated and is returned to the caller.
func (c *Cache[K, V]) GetOrRefresh(key K, ttl time.Duration, refresh func() (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry[V]{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid && time.Since(e.fetchedAt) < ttl {
		return e.value, nil
	}

	value, err := refresh()
	if err != nil {
		var zero V
		e.value = zero
		e.valid = false
		return zero, err
	}

	e.value = value
	e.fetchedAt = time.Now()
	e.valid = true
	return value, nil
}

// Invalidate drops the entry for key, forcing the next GetOrRefresh to
// call its refresh function.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of cached keys.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
