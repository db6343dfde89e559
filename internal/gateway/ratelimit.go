package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-key (user) request rate limits using token bucket.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry

	mu    sync.RWMutex
	r     rate.Limit // refill rate (requests per second)
	burst int        // max burst size

	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewRateLimiter creates a rate limiter.
// rpm is requests per minute, burst is the max burst allowed.
// If rpm <= 0, the rate limiter is effectively disabled (always allows).
func NewRateLimiter(rpm, burst int) *RateLimiter {
	rl := &RateLimiter{stop: make(chan struct{})}
	rl.r, rl.burst = limits(rpm, burst)

	// Periodic cleanup of stale entries (every 5 minutes)
	go rl.cleanupLoop()

	return rl
}

func limits(rpm, burst int) (rate.Limit, int) {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	return r, burst
}

// Allow checks if a request from the given key is allowed.
// When it is not, the returned duration is how long until it would be.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.RLock()
	r := rl.r
	rl.mu.RUnlock()
	if r == 0 {
		return true, 0 // disabled
	}

	entry := rl.getOrCreate(key)
	entry.lastSeen.Store(time.Now().UnixNano())

	res := entry.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		slog.Warn("security.rate_limited", "key", key, "retry_after", delay)
		return false, delay
	}
	return true, 0
}

// Enabled returns true if the rate limiter is active.
func (rl *RateLimiter) Enabled() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.r > 0
}

// SetLimits applies new limits. Existing buckets are dropped so every key
// starts again with a full burst at the new rate.
func (rl *RateLimiter) SetLimits(rpm, burst int) {
	r, b := limits(rpm, burst)
	rl.mu.Lock()
	rl.r, rl.burst = r, b
	rl.limiters.Clear()
	rl.mu.Unlock()
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	rl.mu.RLock()
	entry := &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
	rl.mu.RUnlock()
	entry.lastSeen.Store(time.Now().UnixNano())
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-10 * time.Minute))
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		if entry.lastSeen.Load() < cutoff.UnixNano() {
			rl.limiters.Delete(key)
		}
		return true
	})
}
