// statuswatch follows one resume analysis session until it completes or
// fails, logging every status change and printing the final feedback.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/resume-analyzer/statuswatch/pkg/api"
	"github.com/resume-analyzer/statuswatch/pkg/config"
	"github.com/resume-analyzer/statuswatch/pkg/events"
	"github.com/resume-analyzer/statuswatch/pkg/fallback"
	"github.com/resume-analyzer/statuswatch/pkg/session"
	"github.com/resume-analyzer/statuswatch/pkg/tracker"
	"github.com/resume-analyzer/statuswatch/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	sessionID := flag.String("session", getEnv("SESSION_ID", ""), "Session id to track")
	retry := flag.Bool("retry", false, "Ask the backend to re-run the analysis before tracking")
	transport := flag.String("transport", "", "Override stream transport (sse or websocket)")
	timeout := flag.Duration("timeout", 0, "Stop tracking after this duration (0 means no limit)")
	flag.Parse()

	if getEnv("LOG_LEVEL", "info") == "debug" {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *sessionID == "" {
		fmt.Fprintln(os.Stderr, "statuswatch: -session is required")
		flag.Usage()
		return 2
	}

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}
	if *transport != "" {
		cfg.Stream.Transport = config.Transport(*transport)
		if !cfg.Stream.Transport.IsValid() {
			slog.Error("Invalid transport", "transport", *transport)
			return 2
		}
	}

	slog.Info("Starting statuswatch",
		"version", version.GitCommit,
		"session_id", *sessionID,
		"transport", cfg.Stream.Transport,
		"base_url", cfg.API.BaseURL)

	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	streams := events.NewClient(newTransport(cfg), events.Options{
		ReconnectInterval: cfg.Stream.ReconnectInterval,
		MaxRetries:        cfg.Stream.MaxRetries,
	})
	ctrl := tracker.NewController(streams, apiClient, tracker.Options{
		Poll: fallback.Options{
			Interval:     cfg.Fallback.PollInterval,
			MaxFailures:  cfg.Fallback.MaxFailures,
			QueryTimeout: cfg.Fallback.QueryTimeout,
		},
		Trace: func(ev tracker.TraceEvent) {
			slog.Debug("Event processed",
				"source", ev.Source, "event", ev.Event, "from", ev.From, "to", ev.To, "applied", ev.Applied)
		},
	})

	if *retry {
		if err := apiClient.RetryAnalysis(ctx, *sessionID); err != nil {
			slog.Error("Retry request failed", "error", err)
			return 1
		}
		slog.Info("Retry requested")
	}

	outcome := make(chan int, 1)
	finish := func(code int) {
		select {
		case outcome <- code:
		default:
		}
	}

	warnedLimitedText := false
	handle, err := ctrl.Track(ctx, *sessionID, tracker.Callbacks{
		OnStateChange: func(s session.State) {
			slog.Info(s.Status.Description(),
				"status", s.Status,
				"progress", s.Status.Progress(),
				"retry_count", s.RetryCount,
				"streamed_chars", len(s.StreamingText))
			if s.ExtractionInfo != nil && s.ExtractionInfo.LimitedText() && !warnedLimitedText {
				warnedLimitedText = true
				slog.Warn("Limited text found in document, analysis may be incomplete",
					"page_count", s.ExtractionInfo.PageCount,
					"text_length", s.ExtractionInfo.TextLength)
			}
		},
		OnResult: func(feedback session.Feedback) {
			if err := printFeedback(feedback); err != nil {
				slog.Error("Failed to print feedback", "error", err)
				finish(1)
				return
			}
			finish(0)
		},
		OnError: func(message string) {
			slog.Error("Session failed", "error", message)
			finish(1)
		},
	})
	if err != nil {
		slog.Error("Failed to track session", "error", err)
		return 1
	}
	defer handle.Release()

	select {
	case code := <-outcome:
		return code
	case <-ctx.Done():
		slog.Warn("Stopped before the session finished", "error", ctx.Err(), "status", handle.State().Status)
		return 1
	}
}

func newTransport(cfg *config.Config) events.Transport {
	if cfg.Stream.Transport == config.TransportWebSocket {
		return events.NewWebSocketTransport(cfg.WebSocketEndpoint(), cfg.API.Token, nil)
	}
	return events.NewSSETransport(cfg.API.BaseURL, cfg.API.Token, nil)
}

func printFeedback(feedback session.Feedback) error {
	out, err := json.MarshalIndent(feedback, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
