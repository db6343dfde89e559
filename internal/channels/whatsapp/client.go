// Package whatsapp adapts a whatsmeow client to session.ProtocolClient.
//
// Each client owns its device database (one SQLite file in the user's
// credential directory). Auto-reconnect is disabled so the session manager
// alone decides when to reconnect.
package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/nextlevelbuilder/numcheck/internal/session"
)

// Close codes reported for events that carry no numeric reason.
const (
	codeConnectionLost = 428
	codeStreamReplaced = 440
	codePairingTimeout = 408
	codeClientOutdated = 405

	eventBufferSize = 32
)

// ErrClosed is returned when a closed client is used.
var ErrClosed = errors.New("whatsapp client closed")

// Client is one user's connection to WhatsApp.
type Client struct {
	userID string
	wa     *whatsmeow.Client
	db     *sql.DB

	// ctx lives until Close. The pairing QR channel is bound to it rather
	// than to the caller's Connect context.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	events    chan session.ProtocolEvent
	closeOnce sync.Once
}

var _ session.ProtocolClient = (*Client)(nil)

func newClient(userID string, wa *whatsmeow.Client, db *sql.DB) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		userID: userID,
		wa:     wa,
		db:     db,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan session.ProtocolEvent, eventBufferSize),
	}
}

// Connect starts the connection. Unpaired devices get a QR channel whose
// codes are emitted as pairing challenges.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if c.wa.Store.ID == nil {
		qr, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go c.forwardQR(qr)
	}

	c.emit(session.ProtocolEvent{Kind: session.ProtocolConnecting})
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// QueryRegistration reports whether canonical (+<digits>) has a WhatsApp account.
func (c *Client) QueryRegistration(ctx context.Context, canonical string) (bool, error) {
	if !c.wa.IsConnected() {
		return false, whatsmeow.ErrNotConnected
	}
	resp, err := c.wa.IsOnWhatsApp(ctx, []string{canonical})
	if err != nil {
		return false, fmt.Errorf("is on whatsapp: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// Close disconnects and releases the device database. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wa.Disconnect()

		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()

		if c.db != nil {
			err = c.db.Close()
		}
		slog.Debug("whatsapp.closed", "user", c.userID)
	})
	return err
}

// Events returns the connection-event stream, closed after Close.
func (c *Client) Events() <-chan session.ProtocolEvent { return c.events }

func (c *Client) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(session.ProtocolEvent{Kind: session.ProtocolPairingChallenge, Detail: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			slog.Info("whatsapp.paired", "user", c.userID)
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: "pairing timed out", ReasonCode: codePairingTimeout})
		default:
			detail := item.Event
			if item.Error != nil {
				detail = item.Error.Error()
			}
			slog.Warn("whatsapp.pairing_failed", "user", c.userID, "event", item.Event, "error", item.Error)
			c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: detail})
		}
	}
}

// handleEvent maps whatsmeow events to protocol events.
func (c *Client) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolOpen})
	case *events.PairSuccess:
		slog.Info("whatsapp.pair_success", "user", c.userID, "jid", v.ID.String(), "platform", v.Platform)
	case *events.Disconnected:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: "connection lost", ReasonCode: codeConnectionLost})
	case *events.StreamReplaced:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: "stream replaced by another connection", ReasonCode: codeStreamReplaced})
	case *events.LoggedOut:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: "logged out", ReasonCode: int(v.Reason), LoggedOut: true})
	case *events.ConnectFailure:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: v.Message, ReasonCode: int(v.Reason)})
	case *events.TemporaryBan:
		slog.Warn("whatsapp.temporary_ban", "user", c.userID, "code", int(v.Code), "expire", v.Expire)
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: fmt.Sprintf("temporarily banned for %s", v.Expire), ReasonCode: int(v.Code)})
	case *events.ClientOutdated:
		c.emit(session.ProtocolEvent{Kind: session.ProtocolClose, Detail: "client outdated", ReasonCode: codeClientOutdated})
	case *events.KeepAliveTimeout:
		slog.Debug("whatsapp.keepalive_timeout", "user", c.userID, "errors", v.ErrorCount)
	}
}

// emit never blocks: the session manager may hold its lock while closing us.
func (c *Client) emit(ev session.ProtocolEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		slog.Warn("whatsapp.event_dropped", "user", c.userID, "kind", ev.Kind)
	}
}
