package events

import "context"

// Frame is one named message read from the push channel.
type Frame struct {
	Name string
	Data []byte
}

// Conn is an established push-channel connection for one session.
type Conn interface {
	// Next blocks until the next frame arrives. It returns io.EOF when the
	// server ends the stream.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Transport opens push-channel connections.
type Transport interface {
	Connect(ctx context.Context, sessionID string) (Conn, error)
}
