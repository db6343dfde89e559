package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("check: %w", session.ErrSessionNotReady), "not ready"},
		{&rpcError{Code: protocol.ErrUnauthorized, Message: "invalid token"}, "rejected the token"},
		{fmt.Errorf("call: %w", &rpcError{Code: protocol.ErrNotFound, Message: "run x"}), "not found: run x"},
		{&rpcError{Code: "SOMETHING", Message: `{"raw":"payload"}`}, "failed to handle"},
		{errors.New("connect to gateway at ws://127.0.0.1:18800/ws: dial tcp: connection refused"), "numcheck serve"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := formatError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("formatError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
