// Package cache provides the TTL-bounded caches shared by the validators.
//
// Expiry is enforced lazily: Get never returns an expired entry but leaves it
// in place, and Put removes expired entries only when the cache is full. No
// background goroutine runs. Callers must not hold results from Get across a
// DNS lookup expecting them to stay valid; they look up, release, resolve,
// then Put.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Cache is a bounded mapping from keys to values with per-entry lifetimes.
type Cache[K comparable, V any] interface {
	// Get returns the value for key if present and not expired.
	Get(key K) (V, bool)

	// Put stores value for ttl. A ttl <= 0 stores nothing.
	Put(key K, value V, ttl time.Duration)

	// Sweep removes expired entries and returns how many were removed.
	Sweep() int

	// Len returns the number of stored entries, expired or not.
	Len() int
}

// DefaultMaxSize bounds caches created with a non-positive size.
const DefaultMaxSize = 10000

// Backend names accepted by New.
const (
	BackendMemory  = "memory"
	BackendGoCache = "gocache"
)

// New returns a string-keyed cache of the named backend. An empty backend
// selects BackendMemory.
func New[V any](backend string, maxSize int) (Cache[string, V], error) {
	switch backend {
	case "", BackendMemory:
		return NewTTL[string, V](maxSize), nil
	case BackendGoCache:
		return NewGoCache[V](maxSize), nil
	}
	return nil, fmt.Errorf("cache: unknown backend %q", backend)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a Cache backed by a map guarded by a sync.RWMutex.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	maxSize int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

var _ Cache[string, int] = (*TTL[string, int])(nil)

// NewTTL returns an empty cache holding at most maxSize entries.
func NewTTL[K comparable, V any](maxSize int) *TTL[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		maxSize: maxSize,
	}
}

func (c *TTL[K, V]) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Get implements Cache.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put implements Cache. When the cache is full and key is new, expired
// entries are dropped first; if that frees nothing, the entry expiring
// soonest is evicted.
func (c *TTL[K, V]) Put(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.sweepLocked(now)
		for len(c.entries) >= c.maxSize {
			c.evictEarliestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(ttl)}
}

// Sweep implements Cache.
func (c *TTL[K, V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// Len implements Cache.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[K, V]) sweepLocked(now time.Time) int {
	var n int
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *TTL[K, V]) evictEarliestLocked() {
	var (
		victim   K
		earliest time.Time
		found    bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(earliest) {
			victim, earliest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
