// Package session manages one protocol connection per logical user.
//
// Each user gets a session that moves through a small state machine
// (disconnected → initializing → awaiting_pairing → ready) driven by the
// connection events of its ProtocolClient. The manager detects stuck
// initializations, reconnects after unexpected closes, and supports
// restart, force restart and shutdown. Lifecycle changes are reported to the
// caller through a Sink; EnsureReady never waits for readiness.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// reconnectInitTimeout bounds the open+connect call made by a reconnect task.
const reconnectInitTimeout = 30 * time.Second

// Manager is the registry of per-user sessions.
type Manager struct {
	opener Opener
	creds  CredentialStore
	cfg    Config
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for stuck-initialization detection.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager.
func NewManager(opener Opener, creds CredentialStore, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		opener:   opener,
		creds:    creds,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureReady makes sure userID has a live or initializing session and
// registers sink for its events. It returns once the client is constructed
// and connecting; readiness and failures are delivered to sink.
func (m *Manager) EnsureReady(ctx context.Context, userID string, sink Sink) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}

	for {
		s := m.getOrCreate(userID)
		s.mu.Lock()
		if s.removed {
			s.mu.Unlock()
			continue
		}
		if sink != nil {
			s.sink = sink
		}
		m.ensureLocked(ctx, s)
		s.mu.Unlock()
		return nil
	}
}

func (m *Manager) ensureLocked(ctx context.Context, s *session) {
	switch s.getState() {
	case StateReady:
		s.emit(Event{Type: EventReady, State: StateReady, Message: "session is ready"})
		return

	case StateAwaitingPairing:
		s.emitStatus(StateAwaitingPairing, "waiting for pairing")
		if s.lastChallenge != "" {
			s.emit(Event{Type: EventPairingChallenge, Payload: s.lastChallenge})
		}
		return

	case StateInitializing:
		elapsed := m.now().Sub(s.initStartedAt)
		if elapsed < m.cfg.StuckThreshold {
			s.emitStatus(StateInitializing, "initialization already in progress")
			return
		}
		slog.Warn("session.stuck_initialization", "user", s.userID, "elapsed", elapsed.Round(time.Second))
		s.emitStatus(StateInitializing, "initialization stuck, restarting")
		m.teardownLocked(s)
	}

	m.initLocked(ctx, s, false)
}

// initLocked constructs and connects a fresh client. Must be called with s.mu held.
func (m *Manager) initLocked(ctx context.Context, s *session, reconnecting bool) {
	s.cancelReconnectLocked()
	m.teardownLocked(s)

	s.manual = false
	s.lastChallenge = ""
	if !reconnecting {
		s.attempts = 0
	}

	handle, err := m.creds.Handle(s.userID)
	if err != nil {
		m.failInitLocked(s, fmt.Errorf("credential store: %w", err))
		return
	}

	client, err := m.opener.Open(ctx, handle)
	if err != nil {
		m.failInitLocked(s, fmt.Errorf("open client: %w", err))
		return
	}

	s.setClient(client)
	gen := s.gen
	s.initStartedAt = m.now()
	s.setState(StateInitializing)
	s.emitStatus(StateInitializing, "connecting")

	slog.Info("session.initializing", "user", s.userID, "reconnect", reconnecting, "attempt", s.attempts)

	go m.watch(s, client, gen)

	if err := client.Connect(ctx); err != nil {
		m.teardownLocked(s)
		m.failInitLocked(s, fmt.Errorf("connect: %w", err))
	}
}

// failInitLocked leaves the session disconnected so a later EnsureReady retries cleanly.
func (m *Manager) failInitLocked(s *session, err error) {
	err = fmt.Errorf("%w: %w", ErrInitialization, err)
	slog.Error("session.init_failed", "user", s.userID, "error", err)
	s.setState(StateDisconnected)
	s.emit(Event{Type: EventStatusChanged, State: StateError, Message: err.Error()})
}

// teardownLocked closes the current client, if any. Events still in flight
// from it are discarded because the generation moves on. Must be called with s.mu held.
func (m *Manager) teardownLocked(s *session) {
	if s.client == nil {
		return
	}
	c := s.client
	s.setClient(nil)
	if s.getState() == StateReady {
		s.setState(StateDisconnected)
	} else {
		s.live.Store(nil)
	}
	if err := c.Close(); err != nil {
		slog.Debug("session.close_error", "user", s.userID, "error", err)
	}
}

// watch consumes a client's event stream until the client closes it.
func (m *Manager) watch(s *session, client ProtocolClient, gen uint64) {
	for ev := range client.Events() {
		m.handleEvent(s, gen, ev)
	}
}

func (m *Manager) handleEvent(s *session, gen uint64, ev ProtocolEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.removed {
		return
	}

	switch ev.Kind {
	case ProtocolConnecting:
		s.emitStatus(s.getState(), "connecting")

	case ProtocolPairingChallenge:
		s.lastChallenge = ev.Detail
		s.setState(StateAwaitingPairing)
		s.emitStatus(StateAwaitingPairing, "scan the pairing code to link this session")
		s.emit(Event{Type: EventPairingChallenge, Payload: ev.Detail})

	case ProtocolOpen:
		s.attempts = 0
		s.lastChallenge = ""
		s.markReady()
		slog.Info("session.ready", "user", s.userID)
		s.emitStatus(StateReady, "connected")
		s.emit(Event{Type: EventReady, Message: "session is ready"})

	case ProtocolClose:
		m.handleCloseLocked(s, ev)
	}
}

func (m *Manager) handleCloseLocked(s *session, ev ProtocolEvent) {
	wasManual := s.manual
	m.teardownLocked(s)
	s.lastChallenge = ""

	slog.Warn("session.closed", "user", s.userID, "reason", ev.Detail, "code", ev.ReasonCode,
		"logged_out", ev.LoggedOut, "manual", wasManual)

	s.setState(StateDisconnected)
	s.emit(Event{
		Type:       EventDisconnected,
		Message:    ev.Detail,
		ReasonCode: ev.ReasonCode,
		WasManual:  wasManual,
	})

	if ev.LoggedOut || wasManual {
		msg := "disconnected"
		if ev.LoggedOut {
			msg = "logged out, pairing required"
		}
		s.emitStatus(StateDisconnected, msg)
		return
	}

	if !m.cfg.Reconnect.Allow(s.attempts) {
		s.setState(StateError)
		msg := fmt.Sprintf("connection lost, giving up after %d reconnect attempts", s.attempts)
		slog.Error("session.reconnect_exhausted", "user", s.userID, "attempts", s.attempts)
		s.emitStatus(StateError, msg)
		return
	}

	delay := m.cfg.Reconnect.DelayFor(s.attempts)
	s.attempts++
	s.emitStatus(StateDisconnected, fmt.Sprintf("connection lost, reconnecting in %s", delay.Round(time.Millisecond)))
	m.scheduleReconnectLocked(s, delay)
}

// scheduleReconnectLocked arms the session's single reconnect task. Must be called with s.mu held.
func (m *Manager) scheduleReconnectLocked(s *session, delay time.Duration) {
	s.cancelReconnectLocked()
	seq := s.reconnectSeq
	s.reconnect = time.AfterFunc(delay, func() {
		m.runReconnect(s, seq)
	})
}

func (m *Manager) runReconnect(s *session, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed || s.manual || s.reconnectSeq != seq {
		return
	}
	s.reconnect = nil
	if s.getState() != StateDisconnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reconnectInitTimeout)
	defer cancel()
	m.initLocked(ctx, s, true)
}

// Restart tears the session down, erases its stored credentials and starts a
// fresh initialization after RestartDelay. The user has to pair again.
func (m *Manager) Restart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}

	var sink Sink
	if s := m.lookup(userID); s != nil {
		s.mu.Lock()
		sink = s.sink
		s.cancelReconnectLocked()
		m.teardownLocked(s)
		s.lastChallenge = ""
		s.setState(StateDisconnected)
		s.emitStatus(StateDisconnected, "restarting session")
		s.mu.Unlock()
	}

	if err := m.creds.Erase(userID); err != nil {
		slog.Warn("session.erase_credentials_failed", "user", userID, "error", err)
	}

	slog.Info("session.restart", "user", userID)
	if err := sleepCtx(ctx, m.cfg.RestartDelay); err != nil {
		return err
	}
	return m.EnsureReady(ctx, userID, sink)
}

// ForceRestart drops every piece of in-memory state for userID, erases its
// credentials and initializes from scratch. It recovers sessions stuck in a
// state the close-event path cannot reach.
func (m *Manager) ForceRestart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}

	m.mu.Lock()
	s := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	var sink Sink
	if s != nil {
		s.mu.Lock()
		sink = s.sink
		m.dropLocked(s)
		s.emitStatus(StateDisconnected, "force restarting session")
		s.mu.Unlock()
	}

	if err := m.creds.Erase(userID); err != nil {
		slog.Warn("session.erase_credentials_failed", "user", userID, "error", err)
	}

	slog.Info("session.force_restart", "user", userID)
	if err := sleepCtx(ctx, m.cfg.RestartDelay); err != nil {
		return err
	}
	return m.EnsureReady(ctx, userID, sink)
}

// Shutdown disconnects userID on purpose: reconnects are suppressed, the
// client is closed, stored credentials are erased and the session is removed
// after ShutdownGrace unless it was revived meanwhile.
func (m *Manager) Shutdown(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}

	s := m.lookup(userID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	s.manual = true
	s.cancelReconnectLocked()
	m.teardownLocked(s)
	s.lastChallenge = ""
	s.setState(StateDisconnected)
	if err := m.creds.Erase(userID); err != nil {
		slog.Warn("session.erase_credentials_failed", "user", userID, "error", err)
	}
	s.emit(Event{Type: EventDisconnected, Message: "disconnected by user", WasManual: true})
	s.emitStatus(StateDisconnected, "disconnected")
	s.mu.Unlock()

	slog.Info("session.shutdown", "user", userID)

	if m.cfg.ShutdownGrace <= 0 {
		m.removeIfIdle(s)
		return nil
	}
	time.AfterFunc(m.cfg.ShutdownGrace, func() { m.removeIfIdle(s) })
	return nil
}

// ShutdownAll closes every session without erasing credentials. Used on
// process shutdown so users do not have to pair again after a restart.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range all {
		s.mu.Lock()
		m.dropLocked(s)
		s.emit(Event{Type: EventDisconnected, Message: "server shutting down", WasManual: true})
		s.mu.Unlock()
	}

	if len(all) > 0 {
		slog.Info("session.shutdown_all", "count", len(all))
	}
}

// dropLocked detaches a session that has already left the registry. Must be called with s.mu held.
func (m *Manager) dropLocked(s *session) {
	s.removed = true
	s.manual = true
	s.cancelReconnectLocked()
	m.teardownLocked(s)
	s.lastChallenge = ""
	s.setState(StateDisconnected)
}

func (m *Manager) removeIfIdle(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.sessions[s.userID] != s || !s.manual || s.client != nil || s.getState() != StateDisconnected {
		return
	}
	delete(m.sessions, s.userID)
	s.removed = true
	slog.Debug("session.removed", "user", s.userID)
}

// Status returns the current state of userID without blocking.
func (m *Manager) Status(userID string) Status {
	userID = strings.TrimSpace(userID)
	s := m.lookup(userID)
	if s == nil {
		return Status{UserID: userID, State: StateDisconnected}
	}
	return s.status()
}

// Attach points userID's existing session at sink without changing its
// state. It reports whether a session was found.
func (m *Manager) Attach(userID string, sink Sink) bool {
	s := m.lookup(strings.TrimSpace(userID))
	if s == nil || sink == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.sink = sink
	return true
}

// List returns the status of every registered session, ordered by user id.
func (m *Manager) List() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.status())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.UserID, b.UserID) })
	return out
}

// ReadyClient returns userID's client if the session is ready.
func (m *Manager) ReadyClient(userID string) (ProtocolClient, error) {
	s := m.lookup(strings.TrimSpace(userID))
	if s == nil || s.getState() != StateReady {
		return nil, ErrSessionNotReady
	}
	lc := s.live.Load()
	if lc == nil {
		return nil, ErrSessionNotReady
	}
	return lc.client, nil
}

func (m *Manager) lookup(userID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

func (m *Manager) getOrCreate(userID string) *session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s = newSession(userID, m.now)
	m.sessions[userID] = s
	slog.Debug("session.created", "user", userID)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
