package tracker

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// fakeConn serves frames pushed by the test. Closing frames ends the
// connection with io.EOF.
type fakeConn struct {
	frames   chan events.Frame
	isClosed atomic.Bool
}

func newFakeConn(frames ...events.Frame) *fakeConn {
	c := &fakeConn{frames: make(chan events.Frame, 64)}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) push(name string, payload any) {
	data, _ := json.Marshal(payload)
	c.frames <- events.Frame{Name: name, Data: data}
}

func (c *fakeConn) end() {
	close(c.frames)
}

func (c *fakeConn) Next(ctx context.Context) (events.Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return events.Frame{}, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return events.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.isClosed.Store(true)
	return nil
}

func (c *fakeConn) closed() bool {
	return c.isClosed.Load()
}

// fakeTransport hands out scripted connection results in order. Once the
// script is exhausted every Connect fails with events.ErrSessionNotFound.
type fakeTransport struct {
	mu       sync.Mutex
	script   []any // *fakeConn or error
	connects int
}

func (t *fakeTransport) Connect(_ context.Context, _ string) (events.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if len(t.script) == 0 {
		return nil, events.ErrSessionNotFound
	}
	next := t.script[0]
	t.script = t.script[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(*fakeConn), nil
}

func (t *fakeTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// fakeAPI answers status queries from a script, repeating the last entry.
type fakeAPI struct {
	mu       sync.Mutex
	statuses []*api.StatusResponse
	queries  int
	retries  int
	retryErr error
}

func (a *fakeAPI) GetSessionStatus(_ context.Context, _ string) (*api.StatusResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.statuses) == 0 {
		return nil, &api.HTTPStatusError{StatusCode: 503}
	}
	resp := a.statuses[min(a.queries, len(a.statuses)-1)]
	a.queries++
	return resp, nil
}

func (a *fakeAPI) RetryAnalysis(_ context.Context, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retries++
	return a.retryErr
}

func (a *fakeAPI) Queries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries
}

func statusResponse(status string, feedback map[string]any) *api.StatusResponse {
	return &api.StatusResponse{
		Success:     true,
		SessionData: events.SessionData{Status: status, Feedback: feedback},
	}
}

// recorder captures callbacks.
type recorder struct {
	mu      sync.Mutex
	states  []session.State
	results []session.Feedback
	errors  []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStateChange: func(s session.State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnResult: func(f session.Feedback) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.results = append(r.results, f)
		},
		OnError: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, msg)
		},
	}
}

func (r *recorder) Results() []session.Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Feedback(nil), r.results...)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) States() []session.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.State(nil), r.states...)
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) + len(r.results) + len(r.errors)
}

func (r *recorder) LastStatus() session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1].Status
}

func newTestController(transport events.Transport, backend API, trace TraceFunc) *Controller {
	streams := events.NewClient(transport, events.Options{
		ReconnectInterval: 5 * time.Millisecond,
		MaxRetries:        1,
	})
	return NewController(streams, backend, Options{
		Poll:  fallbackOptions(),
		Trace: trace,
	})
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("handle not done, last state %+v", h.State())
	}
}

func waitStatus(t *testing.T, rec *recorder, status session.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return rec.LastStatus() == status },
		5*time.Second, 5*time.Millisecond, "never reached %s", status)
}
