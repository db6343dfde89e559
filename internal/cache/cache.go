// Package cache holds the last known registration result per canonical number.
//
// Entries expire after a TTL and are pruned lazily on Get. When a Put pushes
// the cache over its capacity, every expired entry is swept synchronously.
// The cache is shared by all sessions and batch runs.
package cache

import (
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a result stays valid.
	DefaultTTL = time.Hour
	// DefaultCapacity is the size above which a full expiry sweep runs.
	DefaultCapacity = 1000
)

// StatusError marks a failed lookup. Results with this status are never stored.
const StatusError = "error"

// Result is a cached verification outcome.
type Result struct {
	Status     string    `json:"status"`
	Registered bool      `json:"registered"`
	Carrier    string    `json:"carrier,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Stats describes the cache for status endpoints.
type Stats struct {
	Size       int `json:"size"`
	Capacity   int `json:"capacity"`
	TTLMinutes int `json:"ttl_minutes"`
}

type entry struct {
	result   Result
	storedAt time.Time
}

// Cache is a TTL map from canonical number to Result. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. Non-positive ttl or capacity fall back to the defaults.
func New(ttl time.Duration, capacity int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		entries:  make(map[string]entry, 256),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for key. Expired entries are deleted and
// reported as a miss.
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

// Put stores r under key. Error results are ignored. Last writer wins.
func (c *Cache) Put(key string, r Result) {
	if r.Status == StatusError || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry{result: r, storedAt: now}

	if len(c.entries) > c.capacity {
		c.sweep(now)
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry, 256)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns size, capacity and TTL.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:       len(c.entries),
		Capacity:   c.capacity,
		TTLMinutes: int(c.ttl / time.Minute),
	}
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(c.now())
}

// sweep must be called with c.mu held.
func (c *Cache) sweep(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) expired(e entry, now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}
