package session

import (
	"context"
	"time"
)

// State is the lifecycle state of a user's protocol session.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateInitializing    State = "initializing"
	StateAwaitingPairing State = "awaiting_pairing"
	StateReady           State = "ready"
	StateError           State = "error"
)

// ProtocolEventKind enumerates connection events emitted by a ProtocolClient.
type ProtocolEventKind string

const (
	ProtocolConnecting       ProtocolEventKind = "connecting"
	ProtocolOpen             ProtocolEventKind = "open"
	ProtocolClose            ProtocolEventKind = "close"
	ProtocolPairingChallenge ProtocolEventKind = "pairing-challenge"
)

// ProtocolEvent is one entry of a client's connection-event stream.
type ProtocolEvent struct {
	Kind ProtocolEventKind
	// Detail carries the pairing payload for ProtocolPairingChallenge and a
	// human readable reason for ProtocolClose.
	Detail string
	// ReasonCode is the network's close code, 0 if unknown.
	ReasonCode int
	// LoggedOut marks a close caused by the account unlinking this device.
	LoggedOut bool
}

// ProtocolClient is the opaque per-session connection to the messaging network.
type ProtocolClient interface {
	// Connect starts connecting. Readiness is reported on Events, not by the return value.
	Connect(ctx context.Context) error
	// QueryRegistration reports whether a canonical number is registered on the network.
	QueryRegistration(ctx context.Context, identifier string) (bool, error)
	// Close tears the connection down. It must be safe to call more than once.
	Close() error
	// Events returns the connection-event stream. It is closed after Close.
	Events() <-chan ProtocolEvent
}

// CredentialHandle locates a user's durable credential blob.
type CredentialHandle struct {
	UserID string
	Dir    string
}

// CredentialStore provides durable per-user credential storage.
type CredentialStore interface {
	// Handle returns (and prepares) the storage location for userID.
	Handle(userID string) (CredentialHandle, error)
	// Erase deletes everything stored for userID.
	Erase(userID string) error
}

// Opener constructs protocol clients bound to a credential handle.
type Opener interface {
	Open(ctx context.Context, handle CredentialHandle) (ProtocolClient, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, handle CredentialHandle) (ProtocolClient, error)

func (f OpenerFunc) Open(ctx context.Context, handle CredentialHandle) (ProtocolClient, error) {
	return f(ctx, handle)
}

// EventType names the events delivered to a Sink.
type EventType string

const (
	EventStatusChanged    EventType = "status-changed"
	EventPairingChallenge EventType = "pairing-challenge"
	EventReady            EventType = "ready"
	EventDisconnected     EventType = "disconnected"
)

// Event is a lifecycle notification for one user.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	State      State     `json:"state,omitempty"`
	Message    string    `json:"message,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	ReasonCode int       `json:"reason_code,omitempty"`
	WasManual  bool      `json:"was_manual,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives lifecycle events. Send must not block for long; it is called
// while the session's lock is held.
type Sink interface {
	Send(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Send(ev Event) { f(ev) }

// Status is a point-in-time view of a session.
type Status struct {
	UserID         string `json:"user_id"`
	State          State  `json:"state"`
	IsReady        bool   `json:"is_ready"`
	IsInitializing bool   `json:"is_initializing"`
	HasConnection  bool   `json:"has_connection"`
}
