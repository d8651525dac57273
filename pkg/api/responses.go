package api

import "github.com/resume-analyzer/statuswatch/pkg/events"

// StatusResponse is returned by GET /sessions/:id/status.
// The snapshot fields are shared with the session.status push frame.
type StatusResponse struct {
	Success bool `json:"success"`
	events.SessionData
}

// RetryResponse is returned by POST /sessions/:id/retry.
type RetryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// errorResponse is the error body the backend sends with non-2xx statuses.
// Either field may carry the text.
type errorResponse struct {
	Error   *events.ErrorDetail `json:"error,omitempty"`
	Message string              `json:"message,omitempty"`
}

func (r errorResponse) text() string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return r.Message
}
