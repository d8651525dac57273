// Package e2e runs the statuswatch client stack against an in-process fake
// backend.
package e2e

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/config"
	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/fallback"
	"github.com/resume-analyzer/statuswatch/pkg/tracker"
)

// TestApp wires the real client stack to a fake backend.
type TestApp struct {
	Backend    *Backend
	Config     *config.Config
	API        *api.Client
	Controller *tracker.Controller

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321/api"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	transport    config.Transport
	pollInterval time.Duration
	maxFailures  int
	trace        tracker.TraceFunc
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithTransport selects the push channel transport.
func WithTransport(transport config.Transport) TestAppOption {
	return func(c *testAppConfig) { c.transport = transport }
}

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.pollInterval = d }
}

// WithMaxPollFailures sets the number of tolerated consecutive poll failures.
func WithMaxPollFailures(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxFailures = n }
}

// WithTrace installs a trace hook on the controller.
func WithTrace(fn tracker.TraceFunc) TestAppOption {
	return func(c *testAppConfig) { c.trace = fn }
}

// NewTestApp starts the fake backend and builds the client stack against it.
// Everything is torn down via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		transport:    config.TransportSSE,
		pollInterval: 20 * time.Millisecond,
		maxFailures:  3,
	}
	for _, opt := range opts {
		opt(tc)
	}

	backend := NewBackend()
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.API.Timeout = 5 * time.Second
	cfg.Stream.Transport = tc.transport
	cfg.Stream.ReconnectInterval = 10 * time.Millisecond
	cfg.Fallback.PollInterval = tc.pollInterval
	cfg.Fallback.MaxFailures = tc.maxFailures
	cfg.Fallback.QueryTimeout = 2 * time.Second

	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)

	var transport events.Transport
	switch cfg.Stream.Transport {
	case config.TransportWebSocket:
		transport = events.NewWebSocketTransport(cfg.WebSocketEndpoint(), cfg.API.Token, nil)
	default:
		transport = events.NewSSETransport(cfg.API.BaseURL, cfg.API.Token, nil)
	}
	streams := events.NewClient(transport, events.Options{
		ReconnectInterval: cfg.Stream.ReconnectInterval,
		MaxRetries:        cfg.Stream.MaxRetries,
	})

	ctrl := tracker.NewController(streams, apiClient, tracker.Options{
		Poll: fallback.Options{
			Interval:     cfg.Fallback.PollInterval,
			MaxFailures:  cfg.Fallback.MaxFailures,
			QueryTimeout: cfg.Fallback.QueryTimeout,
		},
		Trace: tc.trace,
	})

	return &TestApp{
		Backend:    backend,
		Config:     cfg,
		API:        apiClient,
		Controller: ctrl,
		BaseURL:    cfg.API.BaseURL,
		WSURL:      cfg.WebSocketEndpoint(),
		t:          t,
	}
}
