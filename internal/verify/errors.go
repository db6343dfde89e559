package verify

import "errors"

var (
	// ErrInvalidInput is returned when a check is started with no identifiers.
	ErrInvalidInput = errors.New("no identifiers to check")

	// ErrTooManyItems is returned when a check exceeds Settings.MaxItems.
	ErrTooManyItems = errors.New("too many identifiers")

	// ErrRunNotFound is returned for unknown or evicted run ids.
	ErrRunNotFound = errors.New("run not found")
)
