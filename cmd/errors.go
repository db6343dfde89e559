package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// formatError turns an error into a short message for the terminal.
// Raw protocol payloads are never shown.
func formatError(err error) string {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return formatRPCError(rpcErr)
	}

	switch {
	case errors.Is(err, session.ErrSessionNotReady):
		return "the session is not ready. Pair it first with: numcheck check --user <id>"
	case errors.Is(err, verify.ErrTooManyItems):
		return err.Error() + ". Split the list or raise verify.max_items"
	case errors.Is(err, verify.ErrInvalidInput):
		return "no numbers to check"
	case errors.Is(err, session.ErrInitialization):
		return "could not start the session: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, "connection refused", "connect to gateway") {
		return "gateway is not running. Start it with: numcheck serve"
	}
	return err.Error()
}

func formatRPCError(e *rpcError) string {
	switch e.Code {
	case protocol.ErrUnauthorized:
		return "gateway rejected the token. Check gateway.token / NUMCHECK_TOKEN"
	case protocol.ErrFailedPrecondition:
		return "the session is not ready: " + e.Message
	case protocol.ErrResourceExhausted:
		return "limit reached: " + e.Message
	case protocol.ErrNotFound:
		return "not found: " + e.Message
	case protocol.ErrInvalidRequest:
		return "invalid request: " + e.Message
	case protocol.ErrUnavailable:
		return "temporarily unavailable, try again: " + e.Message
	default:
		slog.Debug("unclassified gateway error", "code", e.Code, "message", e.Message)
		return "the gateway failed to handle the request"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
