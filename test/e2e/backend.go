package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// frame is one published session event.
type frame struct {
	name string
	data []byte
}

// subscriber is one live push connection (SSE or WebSocket).
type subscriber struct {
	frames chan frame
}

// fakeSession is the backend's record of one session. Its state is derived
// from the published events with the same reducer the client uses.
type fakeSession struct {
	state      session.State
	subs       map[*subscriber]struct{}
	streamDown bool
	replies    []*api.StatusResponse
	statusHits int
	onRetry    func()
}

// Backend is an in-process stand-in for the resume analysis API. Tests drive
// the session pipeline by publishing events.
type Backend struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	router   *gin.Engine
}

// NewBackend creates the backend and registers its routes under /api.
func NewBackend() *Backend {
	gin.SetMode(gin.TestMode)
	b := &Backend{
		sessions: make(map[string]*fakeSession),
		router:   gin.New(),
	}

	r := b.router.Group("/api")
	r.GET("/sessions/:id/events", b.streamEvents)
	r.GET("/sessions/:id/status", b.getStatus)
	r.POST("/sessions/:id/retry", b.retry)
	r.GET("/ws", b.websocket)
	return b
}

// Handler returns the HTTP handler serving the API.
func (b *Backend) Handler() http.Handler {
	return b.router
}

// CreateSession registers a session in the idle state.
func (b *Backend) CreateSession(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[id] = &fakeSession{
		state: session.NewState(id),
		subs:  make(map[*subscriber]struct{}),
	}
}

// Publish applies an event to the session and pushes it to every live
// subscriber.
func (b *Backend) Publish(id, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal %s payload: %v", name, err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.mustSession(id)
	if ev, err := events.Decode(name, data); err == nil {
		s.state = session.Reduce(s.state, ev)
	}
	for sub := range s.subs {
		select {
		case sub.frames <- frame{name: name, data: data}:
		default:
			// Slow subscriber: cut it off, it will reconnect and catch up.
			delete(s.subs, sub)
			close(sub.frames)
		}
	}
}

// DropStreams closes every live push connection of the session.
func (b *Backend) DropStreams(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.mustSession(id)
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.frames)
	}
}

// SetStreamDown makes the push endpoints reject the session, forcing the
// client onto status polling.
func (b *Backend) SetStreamDown(id string, down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.mustSession(id)
	s.streamDown = down
	if down {
		for sub := range s.subs {
			delete(s.subs, sub)
			close(sub.frames)
		}
	}
}

// ScriptStatus queues replies for the status endpoint. Replies are served in
// order and the last one repeats; without a script the derived state is
// returned.
func (b *Backend) ScriptStatus(id string, replies ...*api.StatusResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustSession(id).replies = replies
}

// OnRetry registers the pipeline reaction to an accepted retry request.
func (b *Backend) OnRetry(id string, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustSession(id).onRetry = fn
}

// StatusHits returns how many times the status endpoint served the session.
func (b *Backend) StatusHits(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mustSession(id).statusHits
}

// Subscribers returns the number of live push connections for the session.
func (b *Backend) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mustSession(id).subs)
}

func (b *Backend) mustSession(id string) *fakeSession {
	s, ok := b.sessions[id]
	if !ok {
		panic("unknown session " + id)
	}
	return s
}

// subscribe registers a subscriber and returns it with the current snapshot.
// It returns nil when the session is unknown or its stream is down.
func (b *Backend) subscribe(id string) (*subscriber, events.SessionData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok || s.streamDown {
		return nil, events.SessionData{}
	}
	sub := &subscriber{frames: make(chan frame, 256)}
	s.subs[sub] = struct{}{}
	return sub, sessionData(s.state)
}

func (b *Backend) unsubscribe(id string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		if _, live := s.subs[sub]; live {
			delete(s.subs, sub)
			close(sub.frames)
		}
	}
}

func sessionData(s session.State) events.SessionData {
	d := events.SessionData{
		Status:           string(s.Status),
		ExtractionInfo:   s.ExtractionInfo,
		StreamingContent: s.StreamingText,
		Feedback:         s.Feedback,
	}
	if s.ErrorMessage != "" {
		d.Error = &events.ErrorDetail{Message: s.ErrorMessage}
	}
	return d
}

// streamEvents serves GET /api/sessions/:id/events as Server-Sent Events.
func (b *Backend) streamEvents(c *gin.Context) {
	id := c.Param("id")
	sub, snapshot := b.subscribe(id)
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	defer b.unsubscribe(id, sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	writeSSE(c, events.EventTypeConnected, []byte(`{}`))
	status, _ := json.Marshal(events.SessionStatusPayload{SessionData: &snapshot})
	writeSSE(c, events.EventTypeSessionStatus, status)

	ctx := c.Request.Context()
	for {
		select {
		case f, ok := <-sub.frames:
			if !ok {
				return
			}
			writeSSE(c, f.name, f.data)
		case <-ctx.Done():
			return
		}
	}
}

func writeSSE(c *gin.Context, name string, data []byte) {
	_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data)
	c.Writer.Flush()
}

// getStatus serves GET /api/sessions/:id/status.
func (b *Backend) getStatus(c *gin.Context) {
	b.mu.Lock()
	s, ok := b.sessions[c.Param("id")]
	if !ok {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	s.statusHits++
	var resp *api.StatusResponse
	switch {
	case len(s.replies) > 1:
		resp = s.replies[0]
		s.replies = s.replies[1:]
	case len(s.replies) == 1:
		resp = s.replies[0]
	default:
		resp = &api.StatusResponse{Success: true, SessionData: sessionData(s.state)}
	}
	b.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

// retry serves POST /api/sessions/:id/retry.
func (b *Backend) retry(c *gin.Context) {
	b.mu.Lock()
	s, ok := b.sessions[c.Param("id")]
	if !ok {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	if s.state.Status != session.StatusError {
		b.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Session is not in error state"})
		return
	}
	hook := s.onRetry
	b.mu.Unlock()

	if hook != nil {
		go hook()
	}
	c.JSON(http.StatusOK, api.RetryResponse{Success: true, Message: "Retry started"})
}

// websocket serves GET /api/ws with the subscribe protocol.
func (b *Backend) websocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()
	if err := writeWS(c, conn, "connection.established", map[string]any{"connection_id": "e2e"}); err != nil {
		return
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg events.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Action != "subscribe" {
		_ = writeWS(c, conn, "subscription.error", map[string]any{"message": "expected subscribe"})
		return
	}
	id, ok := strings.CutPrefix(msg.Channel, "session:")
	if !ok {
		_ = writeWS(c, conn, "subscription.error", map[string]any{"message": "invalid channel"})
		return
	}

	sub, snapshot := b.subscribe(id)
	if sub == nil {
		_ = conn.Close(events.StatusSessionGone, "session not found")
		return
	}
	defer b.unsubscribe(id, sub)

	if err := writeWS(c, conn, "subscription.confirmed", map[string]any{"channel": msg.Channel}); err != nil {
		return
	}
	if err := writeWS(c, conn, events.EventTypeSessionStatus, events.SessionStatusPayload{SessionData: &snapshot}); err != nil {
		return
	}

	// The client never sends after subscribing; CloseRead reports when it leaves.
	ctx = conn.CloseRead(ctx)
	for {
		select {
		case f, ok := <-sub.frames:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			var fields map[string]any
			if err := json.Unmarshal(f.data, &fields); err != nil {
				fields = map[string]any{}
			}
			if err := writeWS(c, conn, f.name, fields); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeWS sends payload as a JSON object with its "type" field set to name.
func writeWS(c *gin.Context, conn *websocket.Conn, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = name
	out, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return conn.Write(c.Request.Context(), websocket.MessageText, out)
}
