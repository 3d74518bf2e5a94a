package wire

// JSON-RPC 2.0 notifications of the push channel.
const (
	JSONRPCVersion = "2.0"
	// MethodSession subscribes a connection to the updates of one session.
	MethodSession = "session"
	// MethodSessionUpdate tells a subscriber the session changed and should be fetched again.
	MethodSessionUpdate = "session_update"
)

// SessionParams are the params of both push channel methods.
type SessionParams struct {
	SessionID string `json:"sessionId"`
}

// Notification is a JSON-RPC 2.0 notification.
type Notification struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  SessionParams `json:"params"`
}

// NewNotification returns a notification for sessionID.
func NewNotification(method, sessionID string) Notification {
	return Notification{JSONRPC: JSONRPCVersion, Method: method, Params: SessionParams{SessionID: sessionID}}
}
