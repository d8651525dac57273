// Package events consumes the session push channel.
//
// ════════════════════════════════════════════════════════════════
// Push Channel Protocol
// ════════════════════════════════════════════════════════════════
//
// The backend pushes named frames with JSON payloads for one session:
//
//   connected             {}
//   session.status        {sessionData: {status, extractionInfo?, streamingContent?, feedback?}}
//   upload.started        {}
//   upload.completed      {}
//   extraction.started    {}
//   extraction.completed  {extractionInfo: {textLength, pageCount, hasText}}
//   analysis.started      {}
//   analysis.streaming    {content: "..."}          (repeated)
//   analysis.completed    {feedback: {...}}
//   retry.started         {retryInfo: {attempt}}
//   error.occurred        {error: {message}, message?}
//
// analysis.streaming chunks are concatenated in arrival order by the
// reducer. session.status is a full snapshot, sent when a connection is
// (re)established; it is merged without regressing the current stage.
//
// Two transports carry the frames: Server-Sent Events (the frame name is
// the SSE "event" field) and WebSocket (the frame name is the payload's
// "type" field). Unnamed SSE frames fall back to the payload's "type".
//
// ════════════════════════════════════════════════════════════════
package events

// Lifecycle event names.
const (
	EventTypeConnected = "connected"

	// Full snapshot of the session, merged monotonically.
	EventTypeSessionStatus = "session.status"

	EventTypeUploadStarted   = "upload.started"
	EventTypeUploadCompleted = "upload.completed"

	EventTypeExtractionStarted   = "extraction.started"
	EventTypeExtractionCompleted = "extraction.completed"

	EventTypeAnalysisStarted   = "analysis.started"
	EventTypeAnalysisStreaming = "analysis.streaming"
	EventTypeAnalysisCompleted = "analysis.completed"

	EventTypeRetryStarted  = "retry.started"
	EventTypeErrorOccurred = "error.occurred"
)

// defaultFrameName is the SSE event name of frames sent without an "event" field.
const defaultFrameName = "message"

// SessionChannel returns the WebSocket channel name for a session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // Channel name (e.g., "session:abc-123")
}

// Control messages sent by the WebSocket server; never surfaced as session events.
const (
	wsConnectionEstablished = "connection.established"
	wsSubscriptionConfirmed = "subscription.confirmed"
	wsSubscriptionError     = "subscription.error"
	wsCatchupOverflow       = "catchup.overflow"
	wsPong                  = "pong"
)
