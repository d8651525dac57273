package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionNotFound is returned when the backend does not know the session.
var ErrSessionNotFound = errors.New("session not found")

// HTTPStatusError is returned for non-2xx responses that do not map to a
// sentinel error.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// mapStatusError converts an unsuccessful response into an error.
func mapStatusError(statusCode int, message, sessionID string) error {
	if statusCode == http.StatusNotFound || statusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return &HTTPStatusError{StatusCode: statusCode, Message: message}
}
