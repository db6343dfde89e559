package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager(opts ...Option) (*Manager, *fakeOpener, *fakeCreds) {
	opener := &fakeOpener{}
	creds := &fakeCreds{}
	return NewManager(opener, creds, testConfig(), opts...), opener, creds
}

func makeReady(t *testing.T, m *Manager, opener *fakeOpener, userID string, sink Sink) *fakeClient {
	t.Helper()
	if err := m.EnsureReady(context.Background(), userID, sink); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	c := opener.client(opener.count() - 1)
	c.emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready", func() bool { return m.Status(userID).IsReady })
	return c
}

func TestEnsureReady_EmptyUserID(t *testing.T) {
	m, _, _ := newTestManager()
	if err := m.EnsureReady(context.Background(), "  ", nil); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("err = %v, want ErrInvalidUserID", err)
	}
}

func TestEnsureReady_InitializingThenReady(t *testing.T) {
	m, opener, _ := newTestManager()
	sink := &recordingSink{}

	if err := m.EnsureReady(context.Background(), "alice", sink); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}

	st := m.Status("alice")
	if st.State != StateInitializing || !st.IsInitializing || !st.HasConnection || st.IsReady {
		t.Fatalf("status after EnsureReady = %+v", st)
	}
	if _, err := m.ReadyClient("alice"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("ReadyClient before open: err = %v", err)
	}

	opener.client(0).emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready event", func() bool { return sink.hasType(EventReady) })

	st = m.Status("alice")
	if !st.IsReady || st.IsInitializing {
		t.Errorf("status after open = %+v", st)
	}
	c, err := m.ReadyClient("alice")
	if err != nil || c == nil {
		t.Errorf("ReadyClient: %v", err)
	}

	// Idempotent when ready: reports ready again, no new client.
	sink2 := &recordingSink{}
	m.EnsureReady(context.Background(), "alice", sink2)
	if !sink2.hasType(EventReady) {
		t.Error("second EnsureReady should report ready immediately")
	}
	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}

func TestEnsureReady_ConcurrentCallsConstructOneClient(t *testing.T) {
	opener := &fakeOpener{delay: 50 * time.Millisecond}
	m := NewManager(opener, &fakeCreds{}, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.EnsureReady(context.Background(), "bob", nil)
		}()
	}
	wg.Wait()

	if n := opener.opens.Load(); n != 1 {
		t.Errorf("opens = %d, want exactly 1", n)
	}
}

func TestEnsureReady_PairingChallenge(t *testing.T) {
	m, opener, _ := newTestManager()
	sink := &recordingSink{}
	m.EnsureReady(context.Background(), "carol", sink)

	opener.client(0).emit(ProtocolEvent{Kind: ProtocolPairingChallenge, Detail: "2@abc,def"})
	waitFor(t, "pairing challenge", func() bool {
		return sink.has(func(ev Event) bool { return ev.Type == EventPairingChallenge && ev.Payload == "2@abc,def" })
	})
	if st := m.Status("carol"); st.State != StateAwaitingPairing {
		t.Fatalf("state = %s, want awaiting_pairing", st.State)
	}

	// A late subscriber gets the current challenge without a new client.
	late := &recordingSink{}
	m.EnsureReady(context.Background(), "carol", late)
	if !late.has(func(ev Event) bool { return ev.Type == EventPairingChallenge && ev.Payload == "2@abc,def" }) {
		t.Error("late sink should receive the pending challenge")
	}
	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}

	opener.client(0).emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready", func() bool { return m.Status("carol").IsReady })
}

func TestEnsureReady_StuckInitializationRestarts(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m, opener, _ := newTestManager(WithClock(clock.Now))

	m.EnsureReady(context.Background(), "dave", nil)
	clock.Advance(30 * time.Second)
	m.EnsureReady(context.Background(), "dave", nil)
	if n := opener.count(); n != 1 {
		t.Fatalf("clients before threshold = %d, want 1", n)
	}

	clock.Advance(31 * time.Second)
	m.EnsureReady(context.Background(), "dave", nil)
	if n := opener.count(); n != 2 {
		t.Fatalf("clients after threshold = %d, want 2", n)
	}
	if !opener.client(0).isClosed() {
		t.Error("stale client should be torn down")
	}
	if st := m.Status("dave"); st.State != StateInitializing {
		t.Errorf("state = %s, want initializing", st.State)
	}
}

func TestEnsureReady_OpenFailureLeavesDisconnected(t *testing.T) {
	m, opener, _ := newTestManager()
	opener.setErr(errors.New("device store locked"))
	sink := &recordingSink{}

	if err := m.EnsureReady(context.Background(), "erin", sink); err != nil {
		t.Fatalf("EnsureReady should not return lifecycle errors: %v", err)
	}
	if st := m.Status("erin"); st.State != StateDisconnected || st.HasConnection {
		t.Fatalf("status = %+v, want disconnected", st)
	}
	if !sink.has(func(ev Event) bool { return ev.Type == EventStatusChanged && ev.State == StateError }) {
		t.Error("sink should receive an error status")
	}

	opener.setErr(nil)
	m.EnsureReady(context.Background(), "erin", sink)
	if st := m.Status("erin"); st.State != StateInitializing {
		t.Errorf("retry state = %s, want initializing", st.State)
	}
}

func TestClose_UnexpectedSchedulesReconnect(t *testing.T) {
	m, opener, _ := newTestManager()
	sink := &recordingSink{}
	c := makeReady(t, m, opener, "frank", sink)

	c.emit(ProtocolEvent{Kind: ProtocolClose, Detail: "stream error", ReasonCode: 428})

	waitFor(t, "reconnect", func() bool { return opener.count() == 2 })
	if !sink.has(func(ev Event) bool { return ev.Type == EventDisconnected && ev.ReasonCode == 428 && !ev.WasManual }) {
		t.Error("expected disconnected event with reason code")
	}
	waitFor(t, "initializing", func() bool { return m.Status("frank").State == StateInitializing })

	opener.client(1).emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready again", func() bool { return m.Status("frank").IsReady })
}

func TestClose_LoggedOutDoesNotReconnect(t *testing.T) {
	m, opener, _ := newTestManager()
	c := makeReady(t, m, opener, "gina", nil)

	c.emit(ProtocolEvent{Kind: ProtocolClose, LoggedOut: true, ReasonCode: 401})
	waitFor(t, "disconnected", func() bool { return m.Status("gina").State == StateDisconnected })

	time.Sleep(50 * time.Millisecond)
	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1 (no reconnect after logout)", n)
	}
}

func TestClose_ReconnectAttemptsExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 1
	opener := &fakeOpener{}
	m := NewManager(opener, &fakeCreds{}, cfg)
	c := makeReady(t, m, opener, "hank", nil)

	c.emit(ProtocolEvent{Kind: ProtocolClose})
	waitFor(t, "first reconnect", func() bool { return opener.count() == 2 })

	opener.client(1).emit(ProtocolEvent{Kind: ProtocolClose})
	waitFor(t, "error state", func() bool { return m.Status("hank").State == StateError })

	time.Sleep(50 * time.Millisecond)
	if n := opener.count(); n != 2 {
		t.Errorf("clients = %d, want 2", n)
	}
}

func TestShutdown_ErasesAndSuppressesReconnect(t *testing.T) {
	m, opener, creds := newTestManager()
	sink := &recordingSink{}
	c := makeReady(t, m, opener, "ivy", sink)

	if err := m.Shutdown(context.Background(), "ivy"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if !c.isClosed() {
		t.Error("client should be closed")
	}
	if creds.erased.Load() != 1 {
		t.Errorf("erase calls = %d, want 1", creds.erased.Load())
	}
	if !sink.has(func(ev Event) bool { return ev.Type == EventDisconnected && ev.WasManual }) {
		t.Error("expected manual disconnected event")
	}
	if len(m.List()) != 0 {
		t.Errorf("session should be removed, list = %+v", m.List())
	}

	time.Sleep(50 * time.Millisecond)
	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}

func TestShutdown_CancelsPendingReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.Delay = 80 * time.Millisecond
	opener := &fakeOpener{}
	m := NewManager(opener, &fakeCreds{}, cfg)
	c := makeReady(t, m, opener, "jack", nil)

	c.emit(ProtocolEvent{Kind: ProtocolClose})
	waitFor(t, "disconnected", func() bool { return m.Status("jack").State == StateDisconnected })

	m.Shutdown(context.Background(), "jack")
	time.Sleep(150 * time.Millisecond)

	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1 (reconnect must be cancelled)", n)
	}
}

func TestShutdown_GraceKeepsRevivedSession(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownGrace = 50 * time.Millisecond
	opener := &fakeOpener{}
	m := NewManager(opener, &fakeCreds{}, cfg)
	makeReady(t, m, opener, "kim", nil)

	m.Shutdown(context.Background(), "kim")
	m.EnsureReady(context.Background(), "kim", nil)
	time.Sleep(100 * time.Millisecond)

	if st := m.Status("kim"); st.State != StateInitializing {
		t.Errorf("revived session state = %s, want initializing", st.State)
	}
	if len(m.List()) != 1 {
		t.Error("revived session must stay registered")
	}
}

func TestForceRestart_NotReadyUntilOpen(t *testing.T) {
	m, opener, creds := newTestManager()
	sink := &recordingSink{}
	old := makeReady(t, m, opener, "leo", sink)

	if err := m.ForceRestart(context.Background(), "leo"); err != nil {
		t.Fatalf("ForceRestart: %v", err)
	}

	if st := m.Status("leo"); st.IsReady {
		t.Fatalf("status right after ForceRestart = %+v, want not ready", st)
	}
	if !old.isClosed() {
		t.Error("old client should be closed")
	}
	if creds.erased.Load() != 1 {
		t.Errorf("erase calls = %d, want 1", creds.erased.Load())
	}
	if n := opener.count(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}

	// Events from the old client are ignored.
	old.emit(ProtocolEvent{Kind: ProtocolOpen})
	time.Sleep(20 * time.Millisecond)
	if m.Status("leo").IsReady {
		t.Fatal("stale client must not make the session ready")
	}

	opener.client(1).emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready", func() bool { return m.Status("leo").IsReady })
}

func TestRestart_ReusesSinkAndErases(t *testing.T) {
	m, opener, creds := newTestManager()
	sink := &recordingSink{}
	makeReady(t, m, opener, "mia", sink)

	if err := m.Restart(context.Background(), "mia"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if creds.erased.Load() != 1 {
		t.Errorf("erase calls = %d, want 1", creds.erased.Load())
	}
	if st := m.Status("mia"); st.State != StateInitializing {
		t.Errorf("state = %s, want initializing", st.State)
	}
	if !sink.has(func(ev Event) bool { return ev.Message == "restarting session" }) {
		t.Error("original sink should see the restart")
	}
}

func TestShutdownAll_KeepsCredentials(t *testing.T) {
	m, opener, creds := newTestManager()
	a := makeReady(t, m, opener, "a", nil)
	m.EnsureReady(context.Background(), "b", nil)

	m.ShutdownAll(context.Background())

	if !a.isClosed() || !opener.client(1).isClosed() {
		t.Error("all clients should be closed")
	}
	if creds.erased.Load() != 0 {
		t.Error("process shutdown must not erase credentials")
	}
	if len(m.List()) != 0 {
		t.Error("registry should be empty")
	}
}

func TestStatus_UnknownUser(t *testing.T) {
	m, _, _ := newTestManager()
	st := m.Status("nobody")
	if st.State != StateDisconnected || st.IsReady || st.HasConnection {
		t.Errorf("status = %+v", st)
	}
}

func TestEntryPoints_TrimUserID(t *testing.T) {
	m, opener, creds := newTestManager()
	makeReady(t, m, opener, " nora ", nil)

	if st := m.Status(" nora "); !st.IsReady || st.UserID != "nora" {
		t.Fatalf("Status with padded id = %+v", st)
	}
	if _, err := m.ReadyClient("nora\t"); err != nil {
		t.Errorf("ReadyClient with padded id: %v", err)
	}

	if err := m.Restart(context.Background(), "  "); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("Restart blank: err = %v", err)
	}
	if err := m.ForceRestart(context.Background(), "  "); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("ForceRestart blank: err = %v", err)
	}
	if err := m.Shutdown(context.Background(), " "); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("Shutdown blank: err = %v", err)
	}

	if err := m.Shutdown(context.Background(), " nora"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if creds.erased.Load() != 1 {
		t.Errorf("erase calls = %d, want 1", creds.erased.Load())
	}
	if len(m.List()) != 0 {
		t.Errorf("padded Shutdown left sessions: %+v", m.List())
	}
}

func TestAttach(t *testing.T) {
	m, opener, _ := newTestManager()
	if m.Attach("olga", &recordingSink{}) {
		t.Fatal("Attach on unknown user reported true")
	}

	m.EnsureReady(context.Background(), "olga", nil)
	sink := &recordingSink{}
	if !m.Attach(" olga ", sink) {
		t.Fatal("Attach on existing session reported false")
	}
	if n := opener.count(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
	if st := m.Status("olga"); st.State != StateInitializing {
		t.Errorf("Attach changed state to %s", st.State)
	}

	opener.client(0).emit(ProtocolEvent{Kind: ProtocolOpen})
	waitFor(t, "ready on attached sink", func() bool { return sink.hasType(EventReady) })
}

func TestReconnectPolicy(t *testing.T) {
	p := ReconnectPolicy{Delay: time.Second, MaxDelay: 8 * time.Second}
	if d := p.DelayFor(5); d != time.Second {
		t.Errorf("fixed delay = %s, want 1s", d)
	}
	if !p.Allow(1000) {
		t.Error("zero MaxAttempts should be unbounded")
	}

	p.Backoff = true
	for attempt := 0; attempt < 10; attempt++ {
		d := p.DelayFor(attempt)
		if d < 750*time.Millisecond || d > 10*time.Second {
			t.Errorf("attempt %d delay = %s out of range", attempt, d)
		}
	}

	p.MaxAttempts = 3
	if !p.Allow(2) || p.Allow(3) {
		t.Error("MaxAttempts=3 should allow attempts 0..2 only")
	}
}
