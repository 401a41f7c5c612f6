package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// GoCache is a Cache with string keys backed by github.com/patrickmn/go-cache.
// It applies the same eviction rule as TTL. Its janitor is disabled so
// expiry stays lazy.
type GoCache[V any] struct {
	// Do not embed or use type directly to reduce the cache's API surface
	c       *gocache.Cache
	lock    sync.Mutex
	maxSize int
}

var _ Cache[string, int] = (*GoCache[int])(nil)

// NewGoCache returns an empty go-cache backed cache holding at most maxSize entries.
func NewGoCache[V any](maxSize int) *GoCache[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &GoCache[V]{
		// All items are inserted with an expiration, and cleanup happens in Put
		// or Sweep, so neither a default expiration nor a janitor is needed.
		c:       gocache.New(gocache.NoExpiration, 0),
		maxSize: maxSize,
	}
}

// Get implements Cache.
func (c *GoCache[V]) Get(key string) (V, bool) {
	obj, ok := c.c.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return obj.(V), true
}

// Put implements Cache.
func (c *GoCache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, exists := c.c.Get(key); !exists && c.c.ItemCount() >= c.maxSize {
		c.c.DeleteExpired()
		for c.c.ItemCount() >= c.maxSize {
			c.evictEarliest()
		}
	}
	c.c.Set(key, value, ttl)
}

func (c *GoCache[V]) evictEarliest() {
	var (
		victim   string
		earliest int64
		found    bool
	)
	for k, item := range c.c.Items() {
		if !found || item.Expiration < earliest {
			victim, earliest, found = k, item.Expiration, true
		}
	}
	if !found {
		// Items skips expired entries; anything left is expired.
		c.c.DeleteExpired()
		return
	}
	c.c.Delete(victim)
}

// Sweep implements Cache.
func (c *GoCache[V]) Sweep() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	before := c.c.ItemCount()
	c.c.DeleteExpired()
	return before - c.c.ItemCount()
}

// Len implements Cache.
func (c *GoCache[V]) Len() int {
	return c.c.ItemCount()
}
