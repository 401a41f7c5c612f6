package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTTL(maxSize int) (*TTL[string, int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string, int](maxSize)
	c.Clock = clock.Now
	return c, clock
}

func TestTTLPutGet(t *testing.T) {
	c, clock := newTestTTL(10)

	c.Put("a", 1, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry expired early")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry returned at its expiry time")
	}
	if c.Len() != 1 {
		t.Errorf("Get evicted eagerly, Len() = %d", c.Len())
	}
}

func TestTTLNonPositiveTTL(t *testing.T) {
	c, _ := newTestTTL(10)
	c.Put("a", 1, 0)
	c.Put("b", 2, -time.Second)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestTTLEvictsEarliestExpiry(t *testing.T) {
	c, _ := newTestTTL(3)
	c.Put("long", 1, time.Hour)
	c.Put("short", 2, time.Minute)
	c.Put("medium", 3, 10*time.Minute)

	c.Put("new", 4, time.Hour)

	if _, ok := c.Get("short"); ok {
		t.Error("entry with nearest expiry survived eviction")
	}
	for _, k := range []string{"long", "medium", "new"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %q evicted", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestTTLSweepsExpiredBeforeEvicting(t *testing.T) {
	c, clock := newTestTTL(3)
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, time.Minute)
	c.Put("c", 3, time.Hour)

	clock.Advance(2 * time.Minute)
	c.Put("d", 4, 30*time.Minute)

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after sweeping a and b", c.Len())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("live entry evicted although expired entries were available")
	}
}

func TestTTLReplaceAtCapacity(t *testing.T) {
	c, _ := newTestTTL(2)
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, time.Hour)
	c.Put("a", 10, time.Minute)

	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("replacing an existing key evicted another entry")
	}
}

func TestTTLSweep(t *testing.T) {
	c, clock := newTestTTL(10)
	c.Put("a", 1, time.Second)
	c.Put("b", 2, time.Hour)
	clock.Advance(time.Minute)

	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestTTLConcurrent(t *testing.T) {
	c := NewTTL[string, int](64)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				k := fmt.Sprintf("k%d", (i*200+j)%100)
				c.Put(k, j, time.Minute)
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Errorf("Len() = %d exceeds max size", c.Len())
	}
}

func TestGoCache(t *testing.T) {
	c := NewGoCache[string](2)

	c.Put("a", "x", time.Hour)
	if v, ok := c.Get("a"); !ok || v != "x" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	c.Put("b", "y", time.Minute)
	c.Put("c", "z", time.Hour)
	if _, ok := c.Get("b"); ok {
		t.Error("entry with nearest expiry survived eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	c.Put("short", "s", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("expired entry returned")
	}
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}

func TestNew(t *testing.T) {
	for _, backend := range []string{"", BackendMemory, BackendGoCache} {
		c, err := New[int](backend, 4)
		if err != nil {
			t.Fatalf("New(%q): %v", backend, err)
		}
		c.Put("k", 1, time.Minute)
		if v, ok := c.Get("k"); !ok || v != 1 {
			t.Errorf("%q: Get(k) = %d, %v", backend, v, ok)
		}
	}
	if _, err := New[int]("redis", 4); err == nil {
		t.Error("expected error for unknown backend")
	}
}
