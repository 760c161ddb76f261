package broker

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry is one cached result with its insertion time.
type cacheEntry struct {
	key        string
	text       string
	insertedAt time.Time
}

// resultCache is a bounded, TTL-evicting cache of raw invocation results.
// Eviction is strict FIFO by insertion time: when the capacity is exceeded
// the oldest entry goes first. A mutex guards all access; concurrent
// invocations share one cache per process.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
}

// newResultCache creates a cache holding at most capacity entries, each
// servable for ttl. Non-positive values fall back to 256 entries / 5m.
func newResultCache(capacity int, ttl time.Duration) *resultCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &resultCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the live (non-expired) entry for key. Expired entries are
// removed on lookup.
func (c *resultCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return "", false
	}
	return entry.text, true
}

// Put inserts or replaces the entry for key. A replaced key counts as a new
// insertion for eviction ordering. When the cache exceeds its capacity the
// oldest entry is evicted.
func (c *resultCache) Put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}

	el := c.order.PushBack(&cacheEntry{key: key, text: text, insertedAt: c.now()})
	c.entries[key] = el

	for len(c.entries) > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Clear empties the cache. Exposed through [Executor.ClearCache] as an
// administrative operation.
func (c *resultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries currently held, expired or not.
func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
