package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// Reconnect defaults.
const (
	DefaultReconnectInterval = 1 * time.Second
	DefaultMaxRetries        = 3
	defaultEventBuffer       = 64
)

// Options controls reconnect behaviour of a Client.
type Options struct {
	// ReconnectInterval is the minimum spacing between connection attempts.
	ReconnectInterval time.Duration
	// MaxRetries is the number of consecutive failed attempts tolerated
	// before the channel is reported unusable. A connection that ends
	// without delivering any frame counts as a failed attempt.
	MaxRetries int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Client opens push-channel subscriptions.
type Client struct {
	transport Transport
	opts      Options
	logger    *slog.Logger
}

// NewClient creates a client on top of transport. Zero option values fall back
// to the defaults.
func NewClient(transport Transport, opts Options) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &Client{
		transport: transport,
		opts:      opts,
		logger:    slog.Default().With("component", "event_stream"),
	}
}

// Stream is one open subscription to a session's push channel.
//
// Events are delivered on Events in arrival order. When the channel will not
// recover (session gone, subscription rejected, reconnect budget exhausted)
// the cause is sent once on Unusable and Events is closed; no event follows.
type Stream struct {
	sessionID string
	client    *Client

	events   chan session.Event
	unusable chan error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open starts the subscription in the background and returns immediately.
// Connection failures are never returned here: they surface on Unusable
// once the reconnect budget is spent. Every Open must be paired with Close.
func (c *Client) Open(ctx context.Context, sessionID string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		sessionID: sessionID,
		client:    c,
		events:    make(chan session.Event, c.opts.EventBuffer),
		unusable:  make(chan error, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Events returns the ordered stream of decoded events.
func (s *Stream) Events() <-chan session.Event {
	return s.events
}

// Unusable receives the terminal connection error, at most once.
func (s *Stream) Unusable() <-chan error {
	return s.unusable
}

// Done is closed when the background goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close tears down the connection and waits for the background goroutine.
// It is idempotent; after it returns nothing is sent on Events or Unusable.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	log := s.client.logger.With("session_id", s.sessionID)
	opts := s.client.opts
	limiter := rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1)

	failures := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := s.client.transport.Connect(ctx, s.sessionID)
		if err == nil {
			var delivered int
			delivered, err = s.consume(ctx, conn, log)
			_ = conn.Close()
			if delivered > 0 {
				failures = 0
			}
		}
		if ctx.Err() != nil {
			return
		}

		if !IsRetryable(err) {
			s.reportUnusable(err, log)
			return
		}
		failures++
		if failures > opts.MaxRetries {
			s.reportUnusable(&ExhaustedError{Attempts: failures, LastError: err}, log)
			return
		}
		log.Info("Push channel dropped, reconnecting",
			"attempt", failures, "max_retries", opts.MaxRetries, "error", err)
	}
}

// consume forwards frames until the connection ends. It returns how many
// events were delivered and the error that ended the connection.
func (s *Stream) consume(ctx context.Context, conn Conn, log *slog.Logger) (int, error) {
	delivered := 0
	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			return delivered, err
		}

		ev, err := Decode(frame.Name, frame.Data)
		if err != nil {
			log.Warn("Dropping malformed frame", "event", frame.Name, "error", err)
			continue
		}
		if u, ok := ev.(session.Unrecognized); ok {
			log.Debug("Ignoring unknown event", "event", u.Tag)
		}

		select {
		case s.events <- ev:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

func (s *Stream) reportUnusable(err error, log *slog.Logger) {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		log.Warn("Push channel reconnect budget exhausted", "attempts", exhausted.Attempts, "error", exhausted.LastError)
	} else {
		log.Warn("Push channel unusable", "error", err)
	}
	s.unusable <- err
}
