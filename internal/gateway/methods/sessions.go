package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/numcheck/internal/gateway"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// SessionMethods handles session.connect, session.status, session.list,
// session.restart, session.force_restart and session.disconnect.
type SessionMethods struct {
	sessions *session.Manager
}

func NewSessionMethods(sessions *session.Manager) *SessionMethods {
	return &SessionMethods{sessions: sessions}
}

func (m *SessionMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSessionConnect, m.handleConnect)
	router.Register(protocol.MethodSessionStatus, m.handleStatus)
	router.Register(protocol.MethodSessionList, m.handleList)
	router.Register(protocol.MethodSessionRestart, m.handleRestart)
	router.Register(protocol.MethodSessionForceRestart, m.handleForceRestart)
	router.Register(protocol.MethodSessionDisconnect, m.handleDisconnect)
}

func userParam(client *gateway.Client, req *protocol.RequestFrame) string {
	var params protocol.UserParams
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	return client.ResolveUser(params.UserID)
}

// handleConnect starts (or resumes) the user's session. Readiness and the
// pairing QR arrive later as session.* events.
func (m *SessionMethods) handleConnect(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := userParam(client, req)
	if err := m.sessions.EnsureReady(ctx, userID, client.Server().SinkFor(userID)); err != nil {
		client.SendErr(req.ID, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.sessions.Status(userID)))
}

func (m *SessionMethods) handleStatus(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, m.sessions.Status(userParam(client, req))))
}

func (m *SessionMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"sessions": m.sessions.List(),
	}))
}

func (m *SessionMethods) handleRestart(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	m.restart(ctx, client, req, m.sessions.Restart)
}

func (m *SessionMethods) handleForceRestart(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	m.restart(ctx, client, req, m.sessions.ForceRestart)
}

func (m *SessionMethods) restart(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame, fn func(context.Context, string) error) {
	userID := userParam(client, req)
	sink := client.Server().SinkFor(userID)
	attached := m.sessions.Attach(userID, sink)
	if err := fn(ctx, userID); err != nil {
		client.SendErr(req.ID, err)
		return
	}
	// A user restarted before it ever connected gets its session created by fn.
	if !attached {
		m.sessions.Attach(userID, sink)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.sessions.Status(userID)))
}

func (m *SessionMethods) handleDisconnect(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := userParam(client, req)
	if err := m.sessions.Shutdown(ctx, userID); err != nil {
		client.SendErr(req.ID, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.sessions.Status(userID)))
}
