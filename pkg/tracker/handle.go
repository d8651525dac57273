package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/fallback"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// Handle is one tracked session. All state transitions and callbacks happen
// on a single event loop goroutine.
type Handle struct {
	id        string
	sessionID string
	ctrl      *Controller
	cb        Callbacks
	span      trace.Span
	logger    *slog.Logger

	mu    sync.RWMutex
	state session.State

	// Owned by the event loop.
	resultSent bool

	cancel      context.CancelFunc
	done        chan struct{}
	reopen      chan struct{}
	releaseOnce sync.Once

	// released is set before cancellation and checked by the loop before
	// every callback.
	released atomic.Bool
}

// ID returns the handle's unique id.
func (h *Handle) ID() string {
	return h.id
}

// SessionID returns the tracked session id.
func (h *Handle) SessionID() string {
	return h.sessionID
}

// State returns the latest published state.
func (h *Handle) State() session.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Done is closed when tracking has ended: after Release, after ctx
// cancellation, or once the session completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Retry asks the backend to re-run the analysis. The resulting transitions
// arrive through the push channel; Retry does not change state itself. If the
// push channel was already torn down, an accepted retry reopens it.
func (h *Handle) Retry(ctx context.Context) error {
	if h.released.Load() {
		return ErrReleased
	}
	if err := h.ctrl.api.RetryAnalysis(ctx, h.sessionID); err != nil {
		h.logger.Warn("Retry request failed", "error", err)
		return err
	}
	h.logger.Info("Retry accepted")
	select {
	case h.reopen <- struct{}{}:
	default:
	}
	return nil
}

// Release stops tracking and waits until the event loop has exited: a
// running callback has returned, the push channel is closed and the poller
// is stopped. It is idempotent and safe for concurrent use. No callback runs
// after Release returns.
//
// Release must not be called from inside a callback, since the loop cannot
// exit before the callback returns. Use Cancel there.
func (h *Handle) Release() {
	h.Cancel()
	<-h.done
}

// Cancel stops tracking without waiting for the event loop. Called from a
// callback, no further callback runs once that callback returns, and the
// loop then closes the push channel and stops the poller. Other goroutines
// should use Release, which also waits for the teardown.
func (h *Handle) Cancel() {
	h.releaseOnce.Do(func() {
		h.released.Store(true)
		h.cancel()
		h.logger.Info("Session handle released")
	})
}

// loopState is the event loop's view of its sources.
type loopState struct {
	stream   *events.Stream
	events   <-chan session.Event
	unusable <-chan error
	polled   <-chan session.Event
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.span.End()

	poller := fallback.NewPoller(h.ctrl.api, h.ctrl.opts.Poll)
	defer poller.Stop()

	var ls loopState
	h.openStream(ctx, &ls)
	defer func() {
		if ls.stream != nil {
			ls.stream.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-ls.events:
			if !ok {
				ls.events = nil
				continue
			}
			h.apply(SourceStream, ev)

		case err := <-ls.unusable:
			// Events sent before the stream gave up are still delivered, in order.
			if ls.events != nil {
				for ev := range ls.events {
					h.apply(SourceStream, ev)
				}
			}
			ls.stream.Close()
			ls = loopState{polled: ls.polled}
			if h.completed() {
				return
			}
			h.onUnusable(ctx, err, poller, &ls)

		case ev, ok := <-ls.polled:
			if !ok {
				poller.Stop()
				ls.polled = nil
				continue
			}
			h.apply(SourcePoll, ev)

		case <-h.reopen:
			if ls.stream != nil {
				continue
			}
			poller.Stop()
			ls.polled = nil
			h.logger.Info("Reopening push channel after retry")
			h.openStream(ctx, &ls)
		}

		if h.completed() {
			h.logger.Info("Session completed, tracking finished")
			return
		}
	}
}

func (h *Handle) openStream(ctx context.Context, ls *loopState) {
	ls.stream = h.ctrl.streams.Open(ctx, h.sessionID)
	ls.events = ls.stream.Events()
	ls.unusable = ls.stream.Unusable()
}

// onUnusable runs one status query and falls back to polling unless the
// session is already terminal.
func (h *Handle) onUnusable(ctx context.Context, cause error, poller *fallback.Poller, ls *loopState) {
	h.logger.Warn("Push channel unusable, querying status", "error", cause)
	h.span.AddEvent("stream.unusable", trace.WithAttributes(attribute.String("error", cause.Error())))

	queryCtx, cancel := context.WithTimeout(ctx, h.ctrl.opts.Poll.QueryTimeout)
	resp, err := h.ctrl.api.GetSessionStatus(queryCtx, h.sessionID)
	cancel()
	if ctx.Err() != nil {
		return
	}

	if err == nil {
		snap, snapErr := fallback.SnapshotFromResponse(resp)
		if snapErr == nil {
			h.apply(SourceQuery, snap)
			if snap.Status.IsTerminal() || h.State().Status.IsTerminal() {
				h.logger.Info("Session already terminal, not polling", "status", h.State().Status)
				return
			}
		} else {
			err = snapErr
		}
	}
	if err != nil {
		h.logger.Warn("Status query failed", "error", err)
	}

	if ls.polled == nil {
		ls.polled = poller.Start(ctx, h.sessionID)
	}
}

// apply folds ev into the state and publishes the result.
func (h *Handle) apply(source Source, ev session.Event) {
	prev := h.State()
	next := session.Reduce(prev, ev)
	changed := !next.Equal(prev)

	h.trace(TraceEvent{
		HandleID:  h.id,
		SessionID: h.sessionID,
		Source:    source,
		Event:     ev.Name(),
		From:      prev.Status,
		To:        next.Status,
		Applied:   changed,
		Time:      time.Now(),
	})
	if !changed {
		h.logger.Debug("Event left state unchanged", "source", source, "event", ev.Name(), "status", prev.Status)
		return
	}
	h.logger.Debug("Event applied", "source", source, "event", ev.Name(), "from", prev.Status, "to", next.Status)

	h.mu.Lock()
	h.state = next
	h.mu.Unlock()

	h.span.AddEvent(ev.Name(), trace.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("status", string(next.Status)),
		attribute.Int("retry_count", next.RetryCount),
	))

	h.deliver(func() {
		if h.cb.OnStateChange != nil {
			h.cb.OnStateChange(next)
		}
	})

	switch {
	case next.Status == session.StatusCompleted && !h.resultSent:
		h.resultSent = true
		h.span.SetStatus(codes.Ok, "")
		h.deliver(func() {
			if h.cb.OnResult != nil {
				h.cb.OnResult(next.Feedback)
			}
		})
	case next.HasError() && !prev.HasError():
		h.logger.Warn("Session failed", "error", next.ErrorMessage)
		h.span.SetStatus(codes.Error, next.ErrorMessage)
		h.deliver(func() {
			if h.cb.OnError != nil {
				h.cb.OnError(next.ErrorMessage)
			}
		})
	}
}

// deliver runs fn unless the handle has been released.
func (h *Handle) deliver(fn func()) {
	if h.released.Load() {
		return
	}
	fn()
}

func (h *Handle) trace(ev TraceEvent) {
	if h.ctrl.opts.Trace == nil {
		return
	}
	h.deliver(func() { h.ctrl.opts.Trace(ev) })
}

func (h *Handle) completed() bool {
	return h.State().Status == session.StatusCompleted
}
