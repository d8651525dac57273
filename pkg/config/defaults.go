package config

import "time"

// Built-in defaults, matching the web client's settings.
const (
	DefaultBaseURL = "http://localhost:3000/api"
	DefaultTimeout = 30 * time.Second

	DefaultReconnectInterval = 1 * time.Second
	DefaultMaxRetries        = 3

	DefaultPollInterval = 2 * time.Second
	DefaultMaxFailures  = 5
	DefaultQueryTimeout = 10 * time.Second
)

// DefaultConfig returns the configuration used when statuswatch.yaml is
// missing. User values are merged over it.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Stream: StreamConfig{
			Transport:         TransportSSE,
			ReconnectInterval: DefaultReconnectInterval,
			MaxRetries:        DefaultMaxRetries,
		},
		Fallback: FallbackConfig{
			PollInterval: DefaultPollInterval,
			MaxFailures:  DefaultMaxFailures,
			QueryTimeout: DefaultQueryTimeout,
		},
	}
}
