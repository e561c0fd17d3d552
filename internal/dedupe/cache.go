// ABOUTME: Thread-safe TTL cache for deduplicating engine reply requests.
// ABOUTME: Expired entries are removed by a periodic background sweep.

package dedupe

import (
	"sync"
	"time"
)

// Cache is a thread-safe, TTL-based set of seen keys. Eviction happens in a
// periodic background sweep rather than per entry, so an expired key may
// linger for up to one sweep interval before removal. Check treats such
// entries as unseen regardless.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	sweep  time.Duration
	done   chan struct{}
	closed bool

	now func() time.Time
}

// NewCache creates a cache with the given TTL and sweep cadence. A background
// goroutine removes expired entries every sweep interval.
func NewCache(ttl, sweep time.Duration) *Cache {
	c := &Cache{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		sweep: sweep,
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go c.sweepLoop()
	return c
}

// Check returns true if the key has been seen and is not expired.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.seen[key]
	if !ok {
		return false
	}
	return c.now().Sub(ts) < c.ttl
}

// CheckAndMark atomically checks whether a key has been seen and marks it if
// not. Returns true if the key was already seen (duplicate), false if it is
// new and now marked. A single mutex-held check-then-mark closes the race
// where two concurrent deliveries of the same key both proceed.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.seen[key]; ok && c.now().Sub(ts) < c.ttl {
		return true
	}
	c.seen[key] = c.now()
	return false
}

// Mark records that a key has been seen. Marking is idempotent: a key that is
// already present keeps its original timestamp.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.seen[key]; ok && c.now().Sub(ts) < c.ttl {
		return
	}
	c.seen[key] = c.now()
}

// Len returns the number of entries currently held, including any expired
// entries not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// OldestAge returns the age of the oldest entry, or false if the cache is
// empty. Used by the status endpoint.
func (c *Cache) OldestAge() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.seen) == 0 {
		return 0, false
	}
	now := c.now()
	var oldest time.Duration
	for _, ts := range c.seen {
		if age := now.Sub(ts); age > oldest {
			oldest = age
		}
	}
	return oldest, true
}

// Entries returns a snapshot of the current keys and their first-seen
// timestamps. Used by the debug endpoint.
func (c *Cache) Entries() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]time.Time, len(c.seen))
	for k, ts := range c.seen {
		snapshot[k] = ts
	}
	return snapshot
}

// Sweep removes all entries older than the TTL as of now. Exported so tests
// can drive eviction deterministically.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, ts := range c.seen {
		if now.Sub(ts) > c.ttl {
			delete(c.seen, key)
		}
	}
}

// sweepLoop runs in a background goroutine, sweeping at a fixed cadence.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(c.now())
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
