package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// session is one user's protocol connection plus lifecycle bookkeeping.
// Every mutable field below mu is guarded by it; state, live and hasClient are
// mirrored atomically so Status and ReadyClient never wait on I/O.
type session struct {
	userID string

	mu            sync.Mutex
	client        ProtocolClient
	gen           uint64 // bumped whenever client is replaced; stale events are dropped
	initStartedAt time.Time
	manual        bool // manuallyDisconnected: suppresses reconnect
	sink          Sink
	lastChallenge string
	attempts      int // consecutive reconnect attempts since the last open
	reconnect     *time.Timer
	reconnectSeq  uint64
	removed       bool // dropped from the registry; callers must look up again

	state     atomic.Value // State
	live      atomic.Pointer[liveClient]
	hasClient atomic.Bool

	now func() time.Time
}

type liveClient struct {
	client ProtocolClient
}

func newSession(userID string, now func() time.Time) *session {
	s := &session{userID: userID, now: now}
	s.state.Store(StateDisconnected)
	return s
}

func (s *session) getState() State {
	return s.state.Load().(State)
}

// setState must be called with s.mu held.
func (s *session) setState(st State) {
	if st != StateReady {
		s.live.Store(nil)
	}
	prev := s.getState()
	s.state.Store(st)
	if prev != st {
		slog.Debug("session.state", "user", s.userID, "from", prev, "to", st)
	}
}

// markReady must be called with s.mu held.
func (s *session) markReady() {
	s.live.Store(&liveClient{client: s.client})
	s.state.Store(StateReady)
}

// setClient must be called with s.mu held.
func (s *session) setClient(c ProtocolClient) {
	s.client = c
	s.gen++
	s.hasClient.Store(c != nil)
}

// emit forwards ev to the registered sink. Must be called with s.mu held.
func (s *session) emit(ev Event) {
	if s.sink == nil {
		return
	}
	ev.UserID = s.userID
	if ev.State == "" {
		ev.State = s.getState()
	}
	ev.At = s.now()
	s.sink.Send(ev)
}

func (s *session) emitStatus(st State, message string) {
	s.emit(Event{Type: EventStatusChanged, State: st, Message: message})
}

// cancelReconnectLocked stops a pending reconnect task. Must be called with s.mu held.
func (s *session) cancelReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.reconnectSeq++
}

func (s *session) status() Status {
	st := s.getState()
	return Status{
		UserID:         s.userID,
		State:          st,
		IsReady:        st == StateReady && s.live.Load() != nil,
		IsInitializing: st == StateInitializing || st == StateAwaitingPairing,
		HasConnection:  s.hasClient.Load(),
	}
}
