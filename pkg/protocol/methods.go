package protocol

// RPC method names.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"

	MethodSessionConnect      = "session.connect"
	MethodSessionStatus       = "session.status"
	MethodSessionList         = "session.list"
	MethodSessionRestart      = "session.restart"
	MethodSessionForceRestart = "session.force_restart"
	MethodSessionDisconnect   = "session.disconnect"

	MethodNumbersNormalize = "numbers.normalize"
	MethodNumbersCheck     = "numbers.check"
	MethodNumbersResult    = "numbers.result"
	MethodNumbersRuns      = "numbers.runs"

	MethodCacheStats = "cache.stats"
	MethodCacheClear = "cache.clear"
)
