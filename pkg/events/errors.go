package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionNotFound indicates the backend no longer knows the session;
	// the push channel will not recover on its own.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSubscriptionRejected indicates the server refused the channel subscription.
	ErrSubscriptionRejected = errors.New("subscription rejected")

	// ErrUnexpectedContentType indicates the endpoint did not answer with an event stream.
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// StatusError is returned when the stream endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("event stream status %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError is reported when consecutive connection attempts ran out.
type ExhaustedError struct {
	Attempts  int
	LastError error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("push channel unusable after %d attempts: %v", e.Attempts, e.LastError)
}

// Unwrap returns the underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// IsRetryable reports whether reconnecting may succeed after err.
// Permanent conditions are: session gone, subscription rejected, a
// non-stream response, 4xx statuses other than 408/429, and cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSubscriptionRejected) ||
		errors.Is(err, ErrUnexpectedContentType) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return statusErr.StatusCode >= 500
	}

	// Dropped connections, timeouts and network failures are retried; the
	// attempt budget bounds them.
	return true
}
