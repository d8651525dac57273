package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resume-analyzer/statuswatch/pkg/session"
	"github.com/resume-analyzer/statuswatch/pkg/tracker"
)

const waitTimeout = 10 * time.Second

// Recorder captures consumer callbacks.
type Recorder struct {
	mu      sync.Mutex
	states  []session.State
	results []session.Feedback
	errors  []string
}

// Callbacks returns callbacks that record into r.
func (r *Recorder) Callbacks() tracker.Callbacks {
	return tracker.Callbacks{
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

// Results returns the recorded OnResult payloads.
func (r *Recorder) Results() []session.Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Feedback(nil), r.results...)
}

// Errors returns the recorded OnError messages.
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// Statuses returns the status of every published state.
func (r *Recorder) Statuses() []session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Status, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Status)
	}
	return out
}

// Calls returns the total number of callbacks received.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) + len(r.results) + len(r.errors)
}

// Track starts tracking id and releases the handle at test end.
func (app *TestApp) Track(id string, rec *Recorder) *tracker.Handle {
	app.t.Helper()
	h, err := app.Controller.Track(context.Background(), id, rec.Callbacks())
	require.NoError(app.t, err)
	app.t.Cleanup(h.Release)
	return h
}

// WaitSubscribed blocks until the backend sees n live push connections.
func (app *TestApp) WaitSubscribed(id string, n int) {
	app.t.Helper()
	require.Eventually(app.t, func() bool { return app.Backend.Subscribers(id) == n },
		waitTimeout, 5*time.Millisecond, "expected %d subscribers for %s", n, id)
}

// WaitState blocks until the handle's state satisfies cond.
func WaitState(t *testing.T, h *tracker.Handle, cond func(session.State) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.State()) }, waitTimeout, 5*time.Millisecond, msg)
}

// WaitDone blocks until the handle stops tracking.
func WaitDone(t *testing.T, h *tracker.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("tracking did not finish, state %+v", h.State())
	}
}

// PublishCompletedPipeline pushes a full successful run.
func (b *Backend) PublishCompletedPipeline(id string, feedback map[string]any) {
	b.Publish(id, "upload.started", map[string]any{})
	b.Publish(id, "upload.completed", map[string]any{})
	b.Publish(id, "extraction.started", map[string]any{})
	b.Publish(id, "extraction.completed", map[string]any{
		"extractionInfo": map[string]any{"pageCount": 2, "textLength": 1500, "hasText": true},
	})
	b.Publish(id, "analysis.started", map[string]any{})
	b.Publish(id, "analysis.streaming", map[string]any{"content": "Hello"})
	b.Publish(id, "analysis.streaming", map[string]any{"content": " world"})
	b.Publish(id, "analysis.completed", map[string]any{"feedback": feedback})
}
