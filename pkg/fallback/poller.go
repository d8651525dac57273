// Package fallback polls the session status endpoint while the push channel
// is unusable.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// Poll defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxFailures  = 5
	DefaultQueryTimeout = 10 * time.Second
)

// StatusQuerier performs the point-in-time status query.
type StatusQuerier interface {
	GetSessionStatus(ctx context.Context, sessionID string) (*api.StatusResponse, error)
}

// Options controls a Poller.
type Options struct {
	Interval time.Duration
	// MaxFailures is the number of consecutive failed polls tolerated; the
	// next failure ends polling with a synthesized error.occurred event.
	MaxFailures int
	// QueryTimeout bounds a single poll.
	QueryTimeout time.Duration
}

// Poller periodically queries session status and emits one Snapshot event
// per successful poll. It stops by itself after a terminal snapshot, when
// the failure bound is exceeded, or on a failure that cannot recover (the
// session is gone or the request is rejected).
type Poller struct {
	querier StatusQuerier
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. Zero option values fall back to the defaults.
func NewPoller(querier StatusQuerier, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxFailures < 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Poller{
		querier: querier,
		opts:    opts,
		logger:  slog.Default().With("component", "fallback_poller"),
	}
}

// Start launches the poll loop for sessionID. The first poll happens one
// interval after Start. The returned channel is closed when polling ends.
// Calling Start on a running poller is a no-op and returns nil.
func (p *Poller) Start(ctx context.Context, sessionID string) <-chan session.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil // already started
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	out := make(chan session.Event, 1)

	go p.loop(ctx, sessionID, out)
	return out
}

// Stop cancels polling and waits for the loop to exit. It is idempotent;
// after Stop returns, Start may be called again.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	p.cancel = nil
	p.done = nil
}

func (p *Poller) loop(ctx context.Context, sessionID string, out chan<- session.Event) {
	defer close(p.done)
	defer close(out)

	log := p.logger.With("session_id", sessionID)
	log.Info("Fallback polling started", "interval", p.opts.Interval)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := p.poll(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Warn("Status poll failed", "attempt", failures, "max_failures", p.opts.MaxFailures, "error", err)
			if failures > p.opts.MaxFailures || isPermanent(err) {
				emit(ctx, out, session.ErrorOccurred{
					Message: fmt.Sprintf("Unable to get session status after %d attempts: %v", failures, err),
				})
				return
			}
			continue
		}

		failures = 0
		if !emit(ctx, out, snap) {
			return
		}
		if snap.Status.IsTerminal() {
			log.Info("Fallback polling reached terminal status", "status", snap.Status)
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context, sessionID string) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	resp, err := p.querier.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return SnapshotFromResponse(resp)
}

// SnapshotFromResponse validates a status response. A response without
// success or with an unknown status counts as a failed query.
func SnapshotFromResponse(resp *api.StatusResponse) (session.Snapshot, error) {
	if !resp.Success {
		msg := "status query unsuccessful"
		if resp.Error != nil && resp.Error.Message != "" {
			msg += ": " + resp.Error.Message
		}
		return session.Snapshot{}, errors.New(msg)
	}
	snap := resp.Snapshot()
	if !snap.Status.Valid() {
		return session.Snapshot{}, fmt.Errorf("status query returned unknown status %q", resp.Status)
	}
	return snap, nil
}

// isPermanent reports whether repeating the query cannot succeed.
func isPermanent(err error) bool {
	if errors.Is(err, api.ErrSessionNotFound) {
		return true
	}
	var statusErr *api.HTTPStatusError
	return errors.As(err, &statusErr) && !statusErr.Temporary()
}

func emit(ctx context.Context, out chan<- session.Event, ev session.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
