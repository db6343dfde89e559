package session

import "errors"

var (
	// ErrSessionNotReady is returned when an operation needs a ready session.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrInvalidUserID is returned for an empty user id.
	ErrInvalidUserID = errors.New("user id is required")

	// ErrInitialization wraps failures to construct or connect a protocol client.
	ErrInitialization = errors.New("session initialization failed")
)
