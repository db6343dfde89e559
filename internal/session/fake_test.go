package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClient struct {
	id     int
	events chan ProtocolEvent

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newFakeClient(id int) *fakeClient {
	return &fakeClient{id: id, events: make(chan ProtocolEvent, 16)}
}

func (c *fakeClient) Connect(context.Context) error { return nil }

func (c *fakeClient) QueryRegistration(context.Context, string) (bool, error) { return true, nil }

func (c *fakeClient) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
	return nil
}

func (c *fakeClient) Events() <-chan ProtocolEvent { return c.events }

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) emit(ev ProtocolEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

type fakeOpener struct {
	mu      sync.Mutex
	clients []*fakeClient
	delay   time.Duration
	err     error
	opens   atomic.Int32
}

func (o *fakeOpener) Open(ctx context.Context, _ CredentialHandle) (ProtocolClient, error) {
	o.opens.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	c := newFakeClient(len(o.clients) + 1)
	o.clients = append(o.clients, c)
	return c, nil
}

func (o *fakeOpener) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *fakeOpener) client(i int) *fakeClient {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.clients) {
		return nil
	}
	return o.clients[i]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

type fakeCreds struct {
	erased atomic.Int32
}

func (f *fakeCreds) Handle(userID string) (CredentialHandle, error) {
	return CredentialHandle{UserID: userID, Dir: "/tmp/" + userID}, nil
}

func (f *fakeCreds) Erase(string) error {
	f.erased.Add(1)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Send(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) has(match func(Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return true
		}
	}
	return false
}

func (r *recordingSink) hasType(t EventType) bool {
	return r.has(func(ev Event) bool { return ev.Type == t })
}

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

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	return Config{
		StuckThreshold: time.Minute,
		ShutdownGrace:  -1,
		RestartDelay:   -1,
		Reconnect:      ReconnectPolicy{Delay: 10 * time.Millisecond},
	}
}
