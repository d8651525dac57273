package session

// Event is the internal event vocabulary consumed by Reduce. Every push frame
// and every polled snapshot is translated into exactly one Event.
type Event interface {
	// Name returns the wire name of the event (e.g. "analysis.streaming").
	Name() string
	isEvent()
}

// Connected reports that the push channel is ready. No state effect.
type Connected struct{}

// UploadStarted moves the session to uploading.
type UploadStarted struct{}

// UploadCompleted moves the session to uploaded.
type UploadCompleted struct{}

// ExtractionStarted moves the session to extracting and clears streamed text.
type ExtractionStarted struct{}

// ExtractionCompleted moves the session to extracted and records extraction info.
type ExtractionCompleted struct {
	Info ExtractionInfo
}

// AnalysisStarted moves the session to analyzing and clears streamed text.
type AnalysisStarted struct{}

// AnalysisStreaming carries one chunk of analysis text.
type AnalysisStreaming struct {
	Content string
}

// AnalysisCompleted carries the final feedback payload.
type AnalysisCompleted struct {
	Feedback Feedback
}

// RetryStarted reports that the backend re-runs the analysis.
type RetryStarted struct {
	Attempt int
}

// ErrorOccurred reports a pipeline failure.
type ErrorOccurred struct {
	Message string
}

// Snapshot is a full point-in-time description of the session, from either
// the push channel or a fallback poll.
type Snapshot struct {
	Status           Status
	ExtractionInfo   *ExtractionInfo
	StreamingContent string
	Feedback         Feedback
	ErrorMessage     string
}

// Unrecognized is a well-formed frame with a name the client does not know.
type Unrecognized struct {
	Tag string
}

func (Connected) Name() string           { return "connected" }
func (UploadStarted) Name() string       { return "upload.started" }
func (UploadCompleted) Name() string     { return "upload.completed" }
func (ExtractionStarted) Name() string   { return "extraction.started" }
func (ExtractionCompleted) Name() string { return "extraction.completed" }
func (AnalysisStarted) Name() string     { return "analysis.started" }
func (AnalysisStreaming) Name() string   { return "analysis.streaming" }
func (AnalysisCompleted) Name() string   { return "analysis.completed" }
func (RetryStarted) Name() string        { return "retry.started" }
func (ErrorOccurred) Name() string       { return "error.occurred" }
func (Snapshot) Name() string            { return "session.status" }
func (e Unrecognized) Name() string      { return e.Tag }

func (Connected) isEvent()           {}
func (UploadStarted) isEvent()       {}
func (UploadCompleted) isEvent()     {}
func (ExtractionStarted) isEvent()   {}
func (ExtractionCompleted) isEvent() {}
func (AnalysisStarted) isEvent()     {}
func (AnalysisStreaming) isEvent()   {}
func (AnalysisCompleted) isEvent()   {}
func (RetryStarted) isEvent()        {}
func (ErrorOccurred) isEvent()       {}
func (Snapshot) isEvent()            {}
func (Unrecognized) isEvent()        {}
