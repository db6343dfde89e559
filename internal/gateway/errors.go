package gateway

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/numcheck/internal/phone"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/store"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// ErrorCode maps a domain error to a protocol error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotReady):
		return protocol.ErrFailedPrecondition
	case errors.Is(err, verify.ErrTooManyItems):
		return protocol.ErrResourceExhausted
	case errors.Is(err, verify.ErrRunNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, verify.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidUserID),
		errors.Is(err, store.ErrEmptyUserID),
		errors.Is(err, phone.ErrFormat),
		errors.Is(err, phone.ErrUnknownCarrier):
		return protocol.ErrInvalidRequest
	case errors.Is(err, session.ErrInitialization),
		errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrUnavailable
	default:
		return protocol.ErrInternal
	}
}
