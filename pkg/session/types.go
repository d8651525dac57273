// Package session models the client-side view of one document-processing
// session: the status enum, the state record owned by a tracker, the internal
// event vocabulary and the pure reducer that folds events into state.
package session

import "reflect"

// Status is the lifecycle stage of a session as seen by the client.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusAnalyzing  Status = "analyzing"
	StatusStreaming  Status = "streaming"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// DefaultErrorMessage is used when the backend reports an error without text.
const DefaultErrorMessage = "An error occurred"

type statusInfo struct {
	rank        int
	progress    int
	description string
	inProgress  bool
}

// rank orders statuses by pipeline stage. retrying shares the analyzing rank:
// it is an excursion back into analysis, not a later stage.
var statuses = map[Status]statusInfo{
	StatusIdle:       {rank: 0, progress: 0, description: "Waiting for upload"},
	StatusUploading:  {rank: 1, progress: 20, description: "Uploading your resume...", inProgress: true},
	StatusUploaded:   {rank: 2, progress: 30, description: "File uploaded successfully"},
	StatusExtracting: {rank: 3, progress: 45, description: "Extracting text from PDF...", inProgress: true},
	StatusExtracted:  {rank: 4, progress: 55, description: "Text extraction completed"},
	StatusAnalyzing:  {rank: 5, progress: 70, description: "AI analysis in progress...", inProgress: true},
	StatusRetrying:   {rank: 5, progress: 70, description: "Retrying analysis...", inProgress: true},
	StatusStreaming:  {rank: 6, progress: 85, description: "Receiving AI feedback...", inProgress: true},
	StatusCompleted:  {rank: 7, progress: 100, description: "Analysis completed successfully!"},
	StatusError:      {rank: 7, progress: 0, description: DefaultErrorMessage},
}

// AllStatuses lists every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusIdle, StatusUploading, StatusUploaded, StatusExtracting, StatusExtracted,
		StatusAnalyzing, StatusStreaming, StatusRetrying, StatusCompleted, StatusError,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// Rank returns the pipeline stage ordinal, or -1 for unknown statuses.
func (s Status) Rank() int {
	info, ok := statuses[s]
	if !ok {
		return -1
	}
	return info.rank
}

// IsTerminal reports whether s ends progress tracking for the session.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Streams reports whether analysis text chunks are accepted in this status.
func (s Status) Streams() bool {
	return s == StatusAnalyzing || s == StatusStreaming
}

// InProgress reports whether the backend is actively working in this status.
func (s Status) InProgress() bool {
	return statuses[s].inProgress
}

// Progress returns the completion percentage shown for this status.
func (s Status) Progress() int {
	return statuses[s].progress
}

// Description returns a human-readable message for this status.
func (s Status) Description() string {
	if info, ok := statuses[s]; ok {
		return info.description
	}
	return DefaultErrorMessage
}

// ExtractionInfo summarizes the text extraction stage.
type ExtractionInfo struct {
	PageCount  int  `json:"pageCount"`
	TextLength int  `json:"textLength"`
	HasText    bool `json:"hasText"`
}

// LimitedText reports whether extraction found little or no text in the document.
func (e ExtractionInfo) LimitedText() bool {
	return !e.HasText
}

// Feedback is the structured analysis result delivered on completion.
type Feedback map[string]any

// State is an immutable snapshot of a tracked session. The reducer returns a
// new value for every transition; Feedback and ExtractionInfo are shared
// between snapshots and must not be mutated by consumers.
type State struct {
	SessionID      string          `json:"sessionId"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retryCount"`
	ExtractionInfo *ExtractionInfo `json:"extractionInfo,omitempty"`
	StreamingText  string          `json:"streamingText"`
	Feedback       Feedback        `json:"feedback,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
}

// NewState returns the initial state for a freshly tracked session.
func NewState(sessionID string) State {
	return State{SessionID: sessionID, Status: StatusIdle}
}

// HasError reports whether the session is in the error state.
func (s State) HasError() bool {
	return s.Status == StatusError
}

// Equal reports whether two snapshots describe the same state.
func (s State) Equal(o State) bool {
	if s.SessionID != o.SessionID || s.Status != o.Status || s.RetryCount != o.RetryCount ||
		s.StreamingText != o.StreamingText || s.ErrorMessage != o.ErrorMessage {
		return false
	}
	if (s.ExtractionInfo == nil) != (o.ExtractionInfo == nil) {
		return false
	}
	if s.ExtractionInfo != nil && *s.ExtractionInfo != *o.ExtractionInfo {
		return false
	}
	return reflect.DeepEqual(s.Feedback, o.Feedback)
}
