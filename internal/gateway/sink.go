package gateway

import (
	"encoding/base64"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// qrImageSize is the edge length of rendered pairing QR codes, in pixels.
const qrImageSize = 256

// userSink fans session events out to every connection bound to userID.
type userSink struct {
	server *Server
	userID string
}

var _ session.Sink = userSink{}

func (s userSink) Send(ev session.Event) {
	var frame *protocol.EventFrame
	switch ev.Type {
	case session.EventStatusChanged:
		frame = protocol.NewEvent(protocol.EventSessionStatus, ev)
	case session.EventPairingChallenge:
		frame = protocol.NewEvent(protocol.EventSessionQR, protocol.QRPayload{
			UserID:  ev.UserID,
			Code:    ev.Payload,
			DataURI: QRDataURI(ev.Payload),
		})
	case session.EventReady:
		frame = protocol.NewEvent(protocol.EventSessionReady, ev)
	case session.EventDisconnected:
		frame = protocol.NewEvent(protocol.EventSessionDisconnected, ev)
	default:
		return
	}
	s.server.BroadcastToUser(s.userID, *frame)
}

// QRDataURI renders content as a PNG data URI, or "" if it cannot be encoded.
func QRDataURI(content string) string {
	if content == "" {
		return ""
	}
	png, err := qrcode.Encode(content, qrcode.Medium, qrImageSize)
	if err != nil {
		slog.Warn("qr render failed", "error", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
