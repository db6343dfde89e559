package protocol

// ConnectParams is sent with the connect method.
type ConnectParams struct {
	Token    string `json:"token,omitempty"`
	UserID   string `json:"user_id,omitempty"` // empty = anonymous, the server assigns one
	Protocol int    `json:"protocol,omitempty"`
}

// ConnectResult answers the connect method.
type ConnectResult struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
	Protocol int    `json:"protocol"`
}

// UserParams selects a session. An empty UserID means the user bound at connect.
type UserParams struct {
	UserID string `json:"user_id,omitempty"`
}

// NumbersParams is sent with numbers.normalize and numbers.check.
type NumbersParams struct {
	UserID  string   `json:"user_id,omitempty"`
	Numbers []string `json:"numbers"`
}

// ResultParams is sent with numbers.result.
type ResultParams struct {
	RunID  string `json:"run_id"`
	Format string `json:"format,omitempty"` // "json" (default) or "csv"
}

// QRPayload is the payload of a session.qr event.
type QRPayload struct {
	UserID  string `json:"user_id"`
	Code    string `json:"code"`
	DataURI string `json:"data_uri,omitempty"` // PNG rendering of Code
}
