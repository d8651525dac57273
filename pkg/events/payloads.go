package events

import (
	"encoding/json"

	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// SessionData is the snapshot body shared by session.status frames and the
// fallback status endpoint.
type SessionData struct {
	Status           string                  `json:"status"`
	ExtractionInfo   *session.ExtractionInfo `json:"extractionInfo,omitempty"`
	StreamingContent string                  `json:"streamingContent,omitempty"`
	Feedback         map[string]any          `json:"feedback,omitempty"`
	Error            *ErrorDetail            `json:"error,omitempty"`
}

// Snapshot converts the wire body into a reducer event.
func (d SessionData) Snapshot() session.Snapshot {
	snap := session.Snapshot{
		Status:           session.Status(d.Status),
		ExtractionInfo:   d.ExtractionInfo,
		StreamingContent: d.StreamingContent,
		Feedback:         d.Feedback,
	}
	if d.Error != nil {
		snap.ErrorMessage = d.Error.Message
	}
	return snap
}

// SessionStatusPayload is the payload for session.status frames.
type SessionStatusPayload struct {
	SessionData *SessionData `json:"sessionData"`
}

// ExtractionCompletedPayload is the payload for extraction.completed frames.
type ExtractionCompletedPayload struct {
	ExtractionInfo *session.ExtractionInfo `json:"extractionInfo"`
}

// AnalysisStreamingPayload is the payload for analysis.streaming frames.
// Published for every analysis chunk; clients concatenate them in order.
type AnalysisStreamingPayload struct {
	Content string `json:"content"`
}

// AnalysisCompletedPayload is the payload for analysis.completed frames.
type AnalysisCompletedPayload struct {
	Feedback map[string]any `json:"feedback"`
}

// RetryStartedPayload is the payload for retry.started frames.
type RetryStartedPayload struct {
	RetryInfo struct {
		Attempt int `json:"attempt"`
	} `json:"retryInfo"`
}

// ErrorOccurredPayload is the payload for error.occurred frames.
type ErrorOccurredPayload struct {
	Error   *ErrorDetail `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ResolvedMessage prefers the nested error message over the top-level one.
func (p ErrorOccurredPayload) ResolvedMessage() string {
	if p.Error != nil && p.Error.Message != "" {
		return p.Error.Message
	}
	return p.Message
}

// ErrorDetail is an error description. The backend sends either an object
// with a message field or a bare string.
type ErrorDetail struct {
	Message string `json:"message"`
}

// UnmarshalJSON accepts both `{"message": "..."}` and `"..."`.
func (e *ErrorDetail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}
	type plain ErrorDetail
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ErrorDetail(p)
	return nil
}
