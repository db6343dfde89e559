package protocol

// WebSocket event names pushed from server to client.
const (
	EventSessionStatus       = "session.status"
	EventSessionQR           = "session.qr"
	EventSessionReady        = "session.ready"
	EventSessionDisconnected = "session.disconnected"
	EventNumbersProgress     = "numbers.progress"
	EventNumbersDone         = "numbers.done"
	EventShutdown            = "shutdown"
)
