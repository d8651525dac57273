// Package tracker turns a session's push channel and fallback polls into one
// monotonically advancing state projection with at-most-once terminal
// callbacks.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/fallback"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

const instrumentationName = "github.com/resume-analyzer/statuswatch/pkg/tracker"

// ErrReleased is returned by operations on a released handle.
var ErrReleased = errors.New("session handle released")

// StreamOpener opens push-channel subscriptions. *events.Client implements it.
type StreamOpener interface {
	Open(ctx context.Context, sessionID string) *events.Stream
}

// API is the REST surface used by the controller.
type API interface {
	fallback.StatusQuerier
	RetryAnalysis(ctx context.Context, sessionID string) error
}

// Callbacks are invoked on the handle's event loop, one at a time. A
// callback may stop tracking with Handle.Cancel but must not call
// Handle.Release.
type Callbacks struct {
	// OnStateChange receives every new state. Consumers must not mutate it.
	OnStateChange func(session.State)
	// OnResult fires exactly once, on the transition to completed.
	OnResult func(session.Feedback)
	// OnError fires once per transition into error.
	OnError func(message string)
}

// Options configures a Controller.
type Options struct {
	Poll   fallback.Options
	Trace  TraceFunc
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Controller tracks sessions. It is safe for concurrent use; every tracked
// session gets its own Handle and event loop.
type Controller struct {
	streams StreamOpener
	api     API
	opts    Options
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewController creates a controller.
func NewController(streams StreamOpener, api API, opts Options) *Controller {
	if opts.Poll.QueryTimeout <= 0 {
		opts.Poll.QueryTimeout = fallback.DefaultQueryTimeout
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		streams: streams,
		api:     api,
		opts:    opts,
		tracer:  tracer,
		logger:  logger.With("component", "session_tracker"),
	}
}

// Track starts tracking sessionID and returns immediately. Connection
// problems are handled in the background. Tracking ends when the handle is
// released, ctx is cancelled, or the session completes; the caller must
// Release the handle in every case.
func (c *Controller) Track(ctx context.Context, sessionID string, cb Callbacks) (*Handle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("track: empty session id")
	}

	id := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "session.track", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("handle.id", id),
	))
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		id:        id,
		sessionID: sessionID,
		ctrl:      c,
		cb:        cb,
		span:      span,
		state:     session.NewState(sessionID),
		cancel:    cancel,
		done:      make(chan struct{}),
		reopen:    make(chan struct{}, 1),
		logger:    c.logger.With("session_id", sessionID, "handle_id", id),
	}

	h.logger.Info("Tracking session")
	go h.run(ctx)
	return h, nil
}
