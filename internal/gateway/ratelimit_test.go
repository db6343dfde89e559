package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter_BurstThenLimited(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("alice"); !ok {
			t.Fatalf("request %d within burst was rejected", i)
		}
	}
	ok, retry := rl.Allow("alice")
	if ok {
		t.Fatal("request beyond burst was allowed")
	}
	if retry <= 0 || retry > time.Second {
		t.Errorf("retry after = %v, want (0, 1s]", retry)
	}

	// Keys are independent.
	if ok, _ := rl.Allow("bob"); !ok {
		t.Error("other key was limited")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()

	if rl.Enabled() {
		t.Fatal("limiter with rpm 0 reports enabled")
	}
	for i := 0; i < 100; i++ {
		if ok, _ := rl.Allow("alice"); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiter_SetLimits(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("alice")
	if ok, _ := rl.Allow("alice"); ok {
		t.Fatal("second request allowed with burst 1")
	}

	rl.SetLimits(0, 1)
	if ok, _ := rl.Allow("alice"); !ok {
		t.Error("request rejected after disabling")
	}

	rl.SetLimits(6000, 10)
	if !rl.Enabled() {
		t.Fatal("limiter not re-enabled")
	}
	if ok, _ := rl.Allow("alice"); !ok {
		t.Error("request rejected after raising limits")
	}
}

func TestRateLimiter_SetLimitsRefillsBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	rl.Allow("alice")
	if ok, _ := rl.Allow("alice"); ok {
		t.Fatal("second request allowed with burst 1")
	}

	rl.SetLimits(1, 2)
	for i := range 2 {
		if ok, _ := rl.Allow("alice"); !ok {
			t.Fatalf("request %d rejected after SetLimits", i)
		}
	}
	if ok, _ := rl.Allow("alice"); ok {
		t.Error("request allowed beyond new burst")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("alice")
	rl.cleanup(time.Now().Add(time.Minute))

	if _, ok := rl.limiters.Load("alice"); ok {
		t.Error("stale entry survived cleanup")
	}
}
