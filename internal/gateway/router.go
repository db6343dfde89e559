package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/numcheck/internal/store"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Methods returns the registered method names.
func (r *MethodRouter) Methods() []string {
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}

// Handle dispatches a request to the appropriate handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

// registerDefaults registers the built-in handshake and health handlers.
func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
}

// --- Built-in handlers ---

func (r *MethodRouter) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params protocol.ConnectParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			client.sendError(req.ID, protocol.ErrInvalidRequest, "invalid connect params: "+err.Error())
			return
		}
	}

	if token := r.server.token(); token != "" {
		if subtle.ConstantTimeCompare([]byte(params.Token), []byte(token)) != 1 {
			slog.Warn("security.connect_rejected", "client", client.id)
			client.sendError(req.ID, protocol.ErrUnauthorized, "invalid token")
			return
		}
	}

	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		userID = "anon-" + uuid.NewString()
	}
	if err := store.ValidateUserID(userID); err != nil {
		client.SendErr(req.ID, err)
		return
	}

	client.bind(userID)
	slog.Info("client authenticated", "client", client.id, "user", userID, "anonymous", params.UserID == "")

	client.SendResponse(protocol.NewOKResponse(req.ID, protocol.ConnectResult{
		UserID:   userID,
		ClientID: client.id,
		Protocol: protocol.ProtocolVersion,
	}))
}

func (r *MethodRouter) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, r.server.Health()))
}
