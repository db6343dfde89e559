package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/pkg/protocol"
)

// rpcError is a failed RPC response.
type rpcError struct {
	Code    string
	Message string
}

func (e *rpcError) Error() string { return e.Code + ": " + e.Message }

// gatewayURL is the WebSocket endpoint of the locally configured gateway.
func gatewayURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(cfg.Gateway.Port)), Path: "/ws"}
	return u.String()
}

// gatewayRPC connects to the running gateway, authenticates, sends one call
// and decodes the response payload into out (when non-nil).
func gatewayRPC(method string, params any, out any) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	endpoint := gatewayURL(cfg)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect to gateway at %s: %w", endpoint, err)
	}
	defer conn.Close()

	// Step 1: connect handshake
	if _, err := roundTrip(conn, "cli-connect", protocol.MethodConnect, protocol.ConnectParams{
		Token:    cfg.Gateway.Token,
		UserID:   "cli",
		Protocol: protocol.ProtocolVersion,
	}); err != nil {
		return err
	}

	// Step 2: the call itself
	payload, err := roundTrip(conn, "cli-rpc", method, params)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func roundTrip(conn *websocket.Conn, id, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	req := protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	// Skip events until the response with the matching id arrives.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}
		if ft, _ := protocol.ParseFrameType(msg); ft != protocol.FrameTypeResponse {
			continue
		}

		var resp struct {
			ID      string               `json:"id"`
			OK      bool                 `json:"ok"`
			Payload json.RawMessage      `json:"payload"`
			Error   *protocol.ErrorShape `json:"error"`
		}
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", method, err)
		}
		if resp.ID != id {
			continue
		}
		if !resp.OK {
			e := &rpcError{Code: protocol.ErrInternal, Message: "unknown error"}
			if resp.Error != nil {
				e.Code, e.Message = resp.Error.Code, resp.Error.Message
			}
			return nil, e
		}
		return resp.Payload, nil
	}
}

// isGatewayReachable reports whether a gateway answers health at the configured address.
func isGatewayReachable() bool {
	return gatewayRPC(protocol.MethodHealth, nil, nil) == nil
}
