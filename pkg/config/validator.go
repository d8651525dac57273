package config

import (
	"fmt"
	"net/url"
)

// validate checks the merged configuration (fail-fast - stops at first error)
func validate(cfg *Config) error {
	if err := validateAPI(&cfg.API); err != nil {
		return err
	}
	if err := validateStream(&cfg.Stream); err != nil {
		return err
	}
	return validateFallback(&cfg.Fallback)
}

func validateAPI(api *APIConfig) error {
	if api.BaseURL == "" {
		return NewValidationError("api", "base_url", ErrMissingRequiredField)
	}
	if err := checkURL(api.BaseURL, "http", "https"); err != nil {
		return NewValidationError("api", "base_url", err)
	}
	if api.Timeout <= 0 {
		return NewValidationError("api", "timeout", fmt.Errorf("%w: must be positive, got %s", ErrInvalidValue, api.Timeout))
	}
	return nil
}

func validateStream(stream *StreamConfig) error {
	if !stream.Transport.IsValid() {
		return NewValidationError("stream", "transport", fmt.Errorf("%w: %q (expected sse or websocket)", ErrInvalidValue, stream.Transport))
	}
	if stream.WebSocketURL != "" {
		if err := checkURL(stream.WebSocketURL, "ws", "wss"); err != nil {
			return NewValidationError("stream", "websocket_url", err)
		}
	}
	if stream.ReconnectInterval <= 0 {
		return NewValidationError("stream", "reconnect_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if stream.MaxRetries < 0 {
		return NewValidationError("stream", "max_retries", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	return nil
}

func validateFallback(fb *FallbackConfig) error {
	if fb.PollInterval <= 0 {
		return NewValidationError("fallback", "poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if fb.MaxFailures < 0 {
		return NewValidationError("fallback", "max_failures", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	if fb.QueryTimeout <= 0 {
		return NewValidationError("fallback", "query_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %q must be an absolute %s URL", ErrInvalidValue, raw, schemes[0])
}
