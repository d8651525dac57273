package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/resume-analyzer/statuswatch/pkg/version"
)

// StatusSessionGone is the close code the server uses when the subscribed
// session does not exist.
const StatusSessionGone websocket.StatusCode = 4404

// WebSocketTransport subscribes to a session channel over a shared WebSocket
// endpoint. After dialing, the client sends {"action":"subscribe"} for
// "session:{id}" and the server answers subscription.confirmed or
// subscription.error before pushing session events.
type WebSocketTransport struct {
	url    string
	token  string
	client *http.Client
}

// NewWebSocketTransport creates a transport dialing wsURL (ws:// or wss://).
func NewWebSocketTransport(wsURL, token string, client *http.Client) *WebSocketTransport {
	return &WebSocketTransport{url: wsURL, token: token, client: client}
}

// Connect dials, subscribes to the session channel and waits for the
// subscription to be confirmed.
func (t *WebSocketTransport) Connect(ctx context.Context, sessionID string) (Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPClient: t.client,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: err.Error()}
		}
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	c := &wsConn{conn: conn, channel: SessionChannel(sessionID)}
	if err := c.subscribe(ctx); err != nil {
		_ = conn.CloseNow()
		return nil, err
	}
	return c, nil
}

type wsConn struct {
	conn    *websocket.Conn
	channel string
	// pending holds a session frame that arrived before the subscription
	// confirmation; it is returned by the first Next call.
	pending []Frame
}

func (c *wsConn) subscribe(ctx context.Context) error {
	msg, err := json.Marshal(ClientMessage{Action: "subscribe", Channel: c.channel})
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("WebSocket subscribe: %w", err)
	}

	for {
		frame, control, err := c.read(ctx)
		if err != nil {
			return err
		}
		switch control {
		case wsSubscriptionConfirmed:
			return nil
		case wsSubscriptionError:
			return fmt.Errorf("%w: %s", ErrSubscriptionRejected, c.channel)
		case "":
			c.pending = append(c.pending, frame)
		}
	}
}

// read returns either a session frame or the type of a control message.
func (c *wsConn) read(ctx context.Context) (Frame, string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == StatusSessionGone {
			return Frame{}, "", fmt.Errorf("%w: %s", ErrSessionNotFound, c.channel)
		}
		return Frame{}, "", err
	}

	var head struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		// Handed to Decode, which reports it as malformed.
		return Frame{Name: defaultFrameName, Data: data}, "", nil
	}

	switch head.Type {
	case wsConnectionEstablished:
		return Frame{Name: EventTypeConnected, Data: []byte("{}")}, "", nil
	case wsSubscriptionConfirmed, wsSubscriptionError, wsPong:
		return Frame{}, head.Type, nil
	case wsCatchupOverflow:
		slog.Warn("WebSocket catchup overflow, relying on next session snapshot", "channel", c.channel)
		return Frame{}, head.Type, nil
	}
	return Frame{Name: head.Type, Data: data}, "", nil
}

func (c *wsConn) Next(ctx context.Context) (Frame, error) {
	if len(c.pending) > 0 {
		frame := c.pending[0]
		c.pending = c.pending[1:]
		return frame, nil
	}
	for {
		frame, control, err := c.read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return Frame{}, fmt.Errorf("WebSocket closed by server: %w", errClosedByServer)
			}
			return Frame{}, err
		}
		if control == wsSubscriptionError {
			return Frame{}, fmt.Errorf("%w: %s", ErrSubscriptionRejected, c.channel)
		}
		if control != "" {
			continue
		}
		return frame, nil
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

var errClosedByServer = errors.New("closed by server")
