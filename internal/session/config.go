package session

import (
	"math/rand/v2"
	"time"
)

// Config controls session lifecycle timing.
type Config struct {
	StuckThreshold time.Duration // initializing longer than this is treated as stuck (default 60s)
	RestartDelay   time.Duration // pause between teardown and re-init on Restart (default 1s)
	ShutdownGrace  time.Duration // delay before a shut down session is dropped (default 2s)
	Reconnect      ReconnectPolicy
}

// ReconnectPolicy decides when an unexpectedly closed session is reinitialized.
type ReconnectPolicy struct {
	Delay       time.Duration // fixed delay, or base delay when Backoff is set (default 3s)
	MaxAttempts int           // consecutive attempts before giving up, 0 = unbounded
	Backoff     bool          // double the delay per attempt with ±25% jitter
	MaxDelay    time.Duration // cap for backoff delays (default 60s)
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		StuckThreshold: 60 * time.Second,
		RestartDelay:   time.Second,
		ShutdownGrace:  2 * time.Second,
		Reconnect: ReconnectPolicy{
			Delay:    3 * time.Second,
			MaxDelay: 60 * time.Second,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = d.StuckThreshold
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = 0
	}
	if c.ShutdownGrace < 0 {
		c.ShutdownGrace = 0
	}
	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = d.Reconnect.Delay
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = d.Reconnect.MaxDelay
	}
	return c
}

// Allow reports whether another attempt may be made after attempts consecutive ones.
func (p ReconnectPolicy) Allow(attempts int) bool {
	return p.MaxAttempts <= 0 || attempts < p.MaxAttempts
}

// DelayFor returns the wait before the attempt with the given zero-based index.
func (p ReconnectPolicy) DelayFor(attempt int) time.Duration {
	if !p.Backoff {
		return p.Delay
	}
	return backoffWithJitter(p.Delay, p.MaxDelay, attempt)
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
