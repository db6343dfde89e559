package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/numcheck/internal/phone"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/store"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{session.ErrSessionNotReady, protocol.ErrFailedPrecondition},
		{fmt.Errorf("check: %w", session.ErrSessionNotReady), protocol.ErrFailedPrecondition},
		{verify.ErrTooManyItems, protocol.ErrResourceExhausted},
		{verify.ErrRunNotFound, protocol.ErrNotFound},
		{verify.ErrInvalidInput, protocol.ErrInvalidRequest},
		{session.ErrInvalidUserID, protocol.ErrInvalidRequest},
		{store.ErrEmptyUserID, protocol.ErrInvalidRequest},
		{fmt.Errorf("%w: 12 digits", phone.ErrFormat), protocol.ErrInvalidRequest},
		{phone.ErrUnknownCarrier, protocol.ErrInvalidRequest},
		{fmt.Errorf("%w: open client: boom", session.ErrInitialization), protocol.ErrUnavailable},
		{context.DeadlineExceeded, protocol.ErrUnavailable},
		{errors.New("disk on fire"), protocol.ErrInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
