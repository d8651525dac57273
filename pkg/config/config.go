package config

import (
	"net/url"
	"strings"
	"time"
)

// Config is the umbrella configuration object returned by Initialize().
type Config struct {
	configDir string // Configuration directory path (for reference)

	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// APIConfig describes the backend REST API.
type APIConfig struct {
	// BaseURL is the prefix of every session endpoint, e.g. http://host/api.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each REST request.
	Timeout time.Duration `yaml:"timeout"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token,omitempty"`
}

// StreamConfig controls the push channel.
type StreamConfig struct {
	Transport Transport `yaml:"transport"`

	// WebSocketURL is the WebSocket endpoint. Derived from the API base URL
	// when empty.
	WebSocketURL string `yaml:"websocket_url,omitempty"`

	// ReconnectInterval is the minimum spacing between connection attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// MaxRetries is the number of consecutive failed connection attempts
	// tolerated before falling back to polling.
	MaxRetries int `yaml:"max_retries"`
}

// FallbackConfig controls status polling while the push channel is unusable.
type FallbackConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxFailures is the number of consecutive failed polls tolerated before
	// the session is reported as failed.
	MaxFailures int `yaml:"max_failures"`

	// QueryTimeout bounds a single status query.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// WebSocketEndpoint returns the configured WebSocket URL, or one derived
// from the API base URL: http(s)://host/api -> ws(s)://host/api/ws.
func (c *Config) WebSocketEndpoint() string {
	if c.Stream.WebSocketURL != "" {
		return c.Stream.WebSocketURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}
