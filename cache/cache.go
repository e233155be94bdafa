// Package cache provides a small sha256-keyed generic cache, the same
// fixed-length-key idiom the teacher uses for its per-run in-memory
// caches. buildforge uses it to memoize per-asset digests computed
// during a whole-package builder pass (§4 manifest builder) so reading
// the same asset twice within one step doesn't recompute its hash.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// Cache is a generic, concurrency-safe map keyed by the sha256 hash of
// an arbitrary string key — fixed-length keys, same reasoning as the
// teacher's GenericCache.
type Cache[V any] struct {
	entries map[string]V
	mu      sync.Mutex
}

// New returns an empty Cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: map[string]V{}}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

// Get returns the cached value for key, if present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[hashKey(key)]
	return v, ok
}

// Put stores value under key.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hashKey(key)] = value
}

// Len reports the number of entries currently cached.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
