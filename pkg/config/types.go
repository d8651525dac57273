package config

// Transport selects the push channel implementation.
type Transport string

const (
	// TransportSSE reads Server-Sent Events from /sessions/{id}/events
	TransportSSE Transport = "sse"
	// TransportWebSocket subscribes to the session channel over WebSocket
	TransportWebSocket Transport = "websocket"
)

// IsValid checks if the transport is supported
func (t Transport) IsValid() bool {
	switch t {
	case TransportSSE, TransportWebSocket:
		return true
	default:
		return false
	}
}
