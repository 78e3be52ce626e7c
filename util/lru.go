package util

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TTLCache wraps hashicorp/golang-lru's O(1) linked-hash-map implementation
// with an optional per-entry time-to-live, matching §4.13's cache contract
// (capacity-bound, MRU-on-get, LRU eviction on overflow) plus the TTL that
// the relevance-scoring cache in §4.11 additionally requires.
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[K, entry[V]]
	ttl   time.Duration
	now   func() time.Time
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// NewTTLCache creates a cache bounded by capacity entries. ttl=0 means
// entries never expire on their own (eviction is purely capacity-driven).
func NewTTLCache[K comparable, V any](capacity int, ttl time.Duration) *TTLCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	c, _ := lru.New[K, entry[V]](capacity)
	return &TTLCache[K, V]{cache: c, ttl: ttl, now: time.Now}
}

// Get returns the cached value and true if present and not expired. A hit
// moves the key to most-recently-used.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		c.cache.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set inserts or updates a key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.cache.Add(key, entry[V]{value: value, expires: expires})
}

// Clear removes all entries.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// Len returns the current number of entries (including possibly-expired ones
// not yet evicted by a Get).
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
