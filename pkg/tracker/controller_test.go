package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/fallback"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

func fallbackOptions() fallback.Options {
	return fallback.Options{Interval: 5 * time.Millisecond, MaxFailures: 2, QueryTimeout: time.Second}
}

func completedScenario(conn *fakeConn) {
	conn.push("upload.started", map[string]any{})
	conn.push("upload.completed", map[string]any{})
	conn.push("extraction.started", map[string]any{})
	conn.push("extraction.completed", map[string]any{
		"extractionInfo": map[string]any{"pageCount": 2, "textLength": 1500, "hasText": true},
	})
	conn.push("analysis.started", map[string]any{})
	conn.push("analysis.streaming", map[string]any{"content": "Hello"})
	conn.push("analysis.streaming", map[string]any{"content": " world"})
	conn.push("analysis.completed", map[string]any{"feedback": map[string]any{"score": 8}})
}

func TestController_Track_Completed(t *testing.T) {
	conn := newFakeConn()
	conn.push("connected", map[string]any{})
	completedScenario(conn)
	conn.push("analysis.completed", map[string]any{"feedback": map[string]any{"score": 1}})

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitDone(t, h)

	final := h.State()
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, "Hello world", final.StreamingText)
	assert.Equal(t, &session.ExtractionInfo{PageCount: 2, TextLength: 1500, HasText: true}, final.ExtractionInfo)
	assert.Equal(t, session.Feedback{"score": float64(8)}, final.Feedback)
	assert.Empty(t, final.ErrorMessage)

	require.Len(t, rec.Results(), 1)
	assert.Equal(t, session.Feedback{"score": float64(8)}, rec.Results()[0])
	assert.Empty(t, rec.Errors())

	statuses := make([]session.Status, 0, len(rec.States()))
	for _, s := range rec.States() {
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []session.Status{
		session.StatusUploading,
		session.StatusUploaded,
		session.StatusExtracting,
		session.StatusExtracted,
		session.StatusAnalyzing,
		session.StatusStreaming,
		session.StatusStreaming,
		session.StatusCompleted,
	}, statuses)
}

func TestController_Track_Error(t *testing.T) {
	conn := newFakeConn()
	conn.push("analysis.started", map[string]any{})
	conn.push("error.occurred", map[string]any{"error": map[string]any{"message": "pipeline failure"}})
	conn.push("error.occurred", map[string]any{"message": "again"})
	conn.push("analysis.streaming", map[string]any{"content": "late"})

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitStatus(t, rec, session.StatusError)
	// Give the trailing frames time to be processed.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"pipeline failure"}, rec.Errors())
	assert.Empty(t, rec.Results())

	final := h.State()
	assert.Equal(t, session.StatusError, final.Status)
	assert.Equal(t, "pipeline failure", final.ErrorMessage)
	assert.Nil(t, final.Feedback)
}

func TestController_Track_FallbackPolling(t *testing.T) {
	backend := &fakeAPI{statuses: []*api.StatusResponse{
		statusResponse("analyzing", nil),
		statusResponse("analyzing", nil),
		statusResponse("analyzing", nil),
		statusResponse("completed", map[string]any{"score": 6}),
	}}
	transport := &fakeTransport{} // every connect: session not found

	rec := &recorder{}
	ctrl := newTestController(transport, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitDone(t, h)

	final := h.State()
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, session.Feedback{"score": 6}, final.Feedback)

	require.Len(t, rec.Results(), 1)
	assert.Equal(t, session.Feedback{"score": 6}, rec.Results()[0])
	assert.Empty(t, rec.Errors())
	assert.Equal(t, 4, backend.Queries())
	assert.Equal(t, 1, transport.Connects())

	// Repeated analyzing snapshots are not republished.
	require.Len(t, rec.States(), 2)
	assert.Equal(t, session.StatusAnalyzing, rec.States()[0].Status)
	assert.Equal(t, session.StatusCompleted, rec.States()[1].Status)
}

func TestController_Track_StaleQueryDoesNotRegress(t *testing.T) {
	conn := newFakeConn()
	conn.push("analysis.started", map[string]any{})
	conn.push("analysis.streaming", map[string]any{"content": "partial"})
	conn.end()

	backend := &fakeAPI{statuses: []*api.StatusResponse{
		statusResponse("extracting", nil),
		statusResponse("completed", map[string]any{"score": 5}),
	}}

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitDone(t, h)

	for _, s := range rec.States()[1:] {
		assert.GreaterOrEqual(t, s.Status.Rank(), session.StatusStreaming.Rank(),
			"status regressed to %s", s.Status)
	}
	assert.Equal(t, session.StatusCompleted, h.State().Status)
	assert.Equal(t, "partial", h.State().StreamingText)
	assert.Len(t, rec.Results(), 1)
}

func TestController_Track_QueryReportsTerminal(t *testing.T) {
	backend := &fakeAPI{statuses: []*api.StatusResponse{
		statusResponse("completed", map[string]any{"score": 9}),
	}}

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{}, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitDone(t, h)
	assert.Equal(t, 1, backend.Queries(), "no polling after a terminal query")
	assert.Len(t, rec.Results(), 1)
}

func TestController_Track_PollExhaustionIsError(t *testing.T) {
	backend := &fakeAPI{} // every query fails

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{}, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	waitStatus(t, rec, session.StatusError)
	require.Len(t, rec.Errors(), 1)
	assert.Contains(t, rec.Errors()[0], "Unable to get session status")
}

func TestController_Release_MidStream(t *testing.T) {
	conn := newFakeConn()
	conn.push("analysis.started", map[string]any{})

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)

	waitStatus(t, rec, session.StatusAnalyzing)
	h.Release()
	before := rec.Count()

	conn.push("analysis.streaming", map[string]any{"content": "x"})
	conn.push("analysis.completed", map[string]any{"feedback": map[string]any{"score": 1}})
	conn.push("error.occurred", map[string]any{"message": "late"})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, rec.Count(), "callbacks fired after Release")
	select {
	case <-h.Done():
	default:
		t.Fatal("handle not done after Release")
	}

	h.Release() // idempotent
	assert.ErrorIs(t, h.Retry(context.Background()), ErrReleased)
}

func TestController_Release_FromCallback(t *testing.T) {
	conn := newFakeConn()

	var handle atomic.Pointer[Handle]
	var calls atomic.Int32
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", Callbacks{
		OnStateChange: func(session.State) {
			calls.Add(1)
			handle.Load().Cancel()
		},
	})
	require.NoError(t, err)
	handle.Store(h)

	conn.push("upload.started", map[string]any{})
	conn.push("upload.completed", map[string]any{})

	waitDone(t, h)
	h.Release()
	assert.Equal(t, int32(1), calls.Load())
}

func TestController_Release_WaitsForRunningCallback(t *testing.T) {
	conn := newFakeConn()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var running atomic.Bool
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, func(TraceEvent) {})
	h, err := ctrl.Track(context.Background(), "s-1", Callbacks{
		OnStateChange: func(session.State) {
			running.Store(true)
			defer running.Store(false)
			close(entered)
			<-unblock
		},
	})
	require.NoError(t, err)

	conn.push("upload.started", map[string]any{})
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}

	released := make(chan struct{})
	go func() {
		h.Release()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Release returned while a callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("Release did not return after the callback finished")
	}
	assert.False(t, running.Load())
	select {
	case <-h.Done():
	default:
		t.Fatal("handle not done when Release returned")
	}
	assert.True(t, conn.closed(), "push channel still open after Release")
}

func TestController_Release_Concurrent(t *testing.T) {
	conn := newFakeConn()
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", Callbacks{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
	waitDone(t, h)
}

func TestController_Retry_RearmsError(t *testing.T) {
	conn := newFakeConn()
	conn.push("analysis.started", map[string]any{})
	conn.push("error.occurred", map[string]any{"error": map[string]any{"message": "first"}})
	conn.push("retry.started", map[string]any{"retryInfo": map[string]any{"attempt": 1}})
	conn.push("analysis.started", map[string]any{})
	conn.push("error.occurred", map[string]any{"error": map[string]any{"message": "second"}})

	rec := &recorder{}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	require.Eventually(t, func() bool { return len(rec.Errors()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, rec.Errors())
	assert.Equal(t, 1, h.State().RetryCount)
	assert.Equal(t, session.StatusError, h.State().Status)
}

func TestController_Retry_ReopensClosedStream(t *testing.T) {
	first := newFakeConn()
	first.push("analysis.started", map[string]any{})
	first.push("error.occurred", map[string]any{"message": "boom"})
	first.end()

	second := newFakeConn()
	second.push("retry.started", map[string]any{"retryInfo": map[string]any{"attempt": 1}})
	second.push("analysis.started", map[string]any{})
	second.push("analysis.streaming", map[string]any{"content": "ok"})
	second.push("analysis.completed", map[string]any{"feedback": map[string]any{"score": 7}})

	transport := &fakeTransport{script: []any{first, events.ErrSessionNotFound, second}}
	backend := &fakeAPI{statuses: []*api.StatusResponse{statusResponse("error", nil)}}

	rec := &recorder{}
	ctrl := newTestController(transport, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", rec.callbacks())
	require.NoError(t, err)
	defer h.Release()

	require.Eventually(t, func() bool { return backend.Queries() >= 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, h.Retry(context.Background()))

	waitDone(t, h)
	assert.Equal(t, []string{"boom"}, rec.Errors())
	require.Len(t, rec.Results(), 1)
	assert.Equal(t, session.Feedback{"score": float64(7)}, rec.Results()[0])
	assert.Equal(t, 1, h.State().RetryCount)
	assert.Equal(t, "ok", h.State().StreamingText)
	assert.Equal(t, 3, transport.Connects())
	assert.Equal(t, 1, backend.Queries(), "terminal query must not start polling")
}

func TestController_Retry_Rejected(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeAPI{retryErr: errors.New("not in error state")}
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, backend, nil)
	h, err := ctrl.Track(context.Background(), "s-1", Callbacks{})
	require.NoError(t, err)
	defer h.Release()

	assert.EqualError(t, h.Retry(context.Background()), "not in error state")
}

func TestController_TraceHook(t *testing.T) {
	conn := newFakeConn()
	conn.push("connected", map[string]any{})
	conn.push("upload.started", map[string]any{})
	conn.push("analysis.completed", map[string]any{"feedback": map[string]any{}})

	var mu sync.Mutex
	var traced []TraceEvent
	ctrl := newTestController(&fakeTransport{script: []any{conn}}, &fakeAPI{}, func(ev TraceEvent) {
		mu.Lock()
		defer mu.Unlock()
		traced = append(traced, ev)
	})
	h, err := ctrl.Track(context.Background(), "s-1", Callbacks{})
	require.NoError(t, err)
	defer h.Release()
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, traced, 3)
	assert.Equal(t, "connected", traced[0].Event)
	assert.False(t, traced[0].Applied)
	assert.Equal(t, session.StatusIdle, traced[1].From)
	assert.Equal(t, session.StatusUploading, traced[1].To)
	assert.True(t, traced[1].Applied)
	assert.Equal(t, session.StatusCompleted, traced[2].To)
	for _, ev := range traced {
		assert.Equal(t, SourceStream, ev.Source)
		assert.Equal(t, h.ID(), ev.HandleID)
		assert.Equal(t, "s-1", ev.SessionID)
	}
	assert.NotNil(t, h.State().Feedback)
}

func TestController_ContextCancellationEndsTracking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := newTestController(&fakeTransport{script: []any{newFakeConn()}}, &fakeAPI{}, nil)
	h, err := ctrl.Track(ctx, "s-1", Callbacks{})
	require.NoError(t, err)
	defer h.Release()

	cancel()
	waitDone(t, h)
}

func TestController_Track_EmptySessionID(t *testing.T) {
	ctrl := newTestController(&fakeTransport{}, &fakeAPI{}, nil)
	_, err := ctrl.Track(context.Background(), "", Callbacks{})
	assert.Error(t, err)
}

func TestController_HandleIDsAreUnique(t *testing.T) {
	ctrl := newTestController(&fakeTransport{script: []any{newFakeConn(), newFakeConn()}}, &fakeAPI{}, nil)
	a, err := ctrl.Track(context.Background(), "s-1", Callbacks{})
	require.NoError(t, err)
	defer a.Release()
	b, err := ctrl.Track(context.Background(), "s-2", Callbacks{})
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "s-2", b.SessionID())
}
