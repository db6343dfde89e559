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

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func valid(registered bool) Result {
	return Result{Status: "valid", Registered: registered, Carrier: "Jazz"}
}

func TestCache_PutGet(t *testing.T) {
	c := New(time.Hour, 10)
	c.Put("+923001234567", valid(true))

	got, ok := c.Get("+923001234567")
	if !ok {
		t.Fatal("expected hit")
	}
	if !got.Registered || got.Carrier != "Jazz" {
		t.Errorf("unexpected result: %+v", got)
	}

	if _, ok := c.Get("+923001111111"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_ErrorResultsNotStored(t *testing.T) {
	c := New(time.Hour, 10)
	c.Put("+923001234567", Result{Status: StatusError})

	if _, ok := c.Get("+923001234567"); ok {
		t.Error("error result must not be cached")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestCache_ExpiredIsMissAndEvicted(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Hour, 10, WithClock(clock.Now))
	c.Put("k", valid(false))

	clock.Advance(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be valid before TTL")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry older than TTL must not be returned")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on Get, len = %d", c.Len())
	}
}

func TestCache_OverCapacitySweepsExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, 3, WithClock(clock.Now))

	c.Put("a", valid(true))
	c.Put("b", valid(true))
	c.Put("c", valid(true))

	clock.Advance(2 * time.Minute)
	c.Put("d", valid(true)) // 4 > capacity: a, b, c are expired and swept

	if n := c.Len(); n != 1 {
		t.Errorf("len after sweep = %d, want 1", n)
	}
	if _, ok := c.Get("d"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestCache_OverCapacityKeepsFreshEntries(t *testing.T) {
	c := New(time.Hour, 2)
	c.Put("a", valid(true))
	c.Put("b", valid(true))
	c.Put("c", valid(true))

	// Nothing expired, so the sweep removes nothing.
	if n := c.Len(); n != 3 {
		t.Errorf("len = %d, want 3", n)
	}
}

func TestCache_StatsAndClear(t *testing.T) {
	c := New(90*time.Minute, 500)
	c.Put("a", valid(true))
	c.Put("b", valid(false))

	s := c.Stats()
	if s.Size != 2 || s.Capacity != 500 || s.TTLMinutes != 90 {
		t.Errorf("stats = %+v", s)
	}

	c.Clear()
	if s := c.Stats(); s.Size != 0 {
		t.Errorf("size after clear = %d", s.Size)
	}
}

func TestCache_Defaults(t *testing.T) {
	c := New(0, 0)
	s := c.Stats()
	if s.Capacity != DefaultCapacity || s.TTLMinutes != 60 {
		t.Errorf("defaults = %+v", s)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Hour, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%80)
				c.Put(key, valid(j%2 == 0))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if n := c.Len(); n > 80 {
		t.Errorf("len = %d, want <= 80", n)
	}
}
