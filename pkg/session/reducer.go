package session

// Reduce folds one event into the state and returns the next state. It is
// pure: the input state is not modified and no I/O happens.
//
// Stage events are accepted from any non-terminal status because push frames
// and polled snapshots interleave out of pipeline order. completed absorbs
// every event; error absorbs everything but retry.started.
func Reduce(s State, ev Event) State {
	switch s.Status {
	case StatusCompleted:
		return s
	case StatusError:
		if _, ok := ev.(RetryStarted); !ok {
			return s
		}
	}

	switch e := ev.(type) {
	case UploadStarted:
		return s.moveTo(StatusUploading)
	case UploadCompleted:
		return s.moveTo(StatusUploaded)
	case ExtractionStarted:
		s = s.moveTo(StatusExtracting)
		s.StreamingText = StreamText(s.StreamingText).Reset().String()
		return s
	case ExtractionCompleted:
		s = s.moveTo(StatusExtracted)
		if s.ExtractionInfo == nil {
			info := e.Info
			s.ExtractionInfo = &info
		}
		return s
	case AnalysisStarted:
		s = s.moveTo(StatusAnalyzing)
		s.StreamingText = StreamText(s.StreamingText).Reset().String()
		return s
	case AnalysisStreaming:
		if !s.Status.Streams() {
			return s
		}
		s.StreamingText = StreamText(s.StreamingText).Append(s.Status, e.Content).String()
		return s.moveTo(StatusStreaming)
	case AnalysisCompleted:
		s = s.moveTo(StatusCompleted)
		s.Feedback = nonNilFeedback(e.Feedback)
		return s
	case RetryStarted:
		s = s.moveTo(StatusRetrying)
		s.RetryCount++
		s.StreamingText = StreamText(s.StreamingText).Reset().String()
		return s
	case ErrorOccurred:
		s.Status = StatusError
		s.ErrorMessage = errorMessage(e.Message)
		return s
	case Snapshot:
		return mergeSnapshot(s, e)
	case Connected, Unrecognized:
		return s
	default:
		return s
	}
}

// mergeSnapshot applies a snapshot without ever moving the status backwards.
// Data fields are merged even when the status is stale: extraction info fills
// a gap, streamed text only grows.
func mergeSnapshot(s State, e Snapshot) State {
	if !e.Status.Valid() {
		return s
	}

	if e.Status != s.Status && e.Status.Rank() >= s.Status.Rank() {
		switch e.Status {
		case StatusCompleted:
			s = s.moveTo(StatusCompleted)
			s.Feedback = nonNilFeedback(e.Feedback)
		case StatusError:
			s.Status = StatusError
			s.ErrorMessage = errorMessage(e.ErrorMessage)
		default:
			s = s.moveTo(e.Status)
		}
	}

	if s.ExtractionInfo == nil && e.ExtractionInfo != nil {
		info := *e.ExtractionInfo
		s.ExtractionInfo = &info
	}
	if e.StreamingContent != "" {
		s.StreamingText = StreamText(s.StreamingText).Extend(e.StreamingContent).String()
	}
	return s
}

// moveTo sets a non-error status. A fresh stage clears any stale error.
func (s State) moveTo(status Status) State {
	s.Status = status
	s.ErrorMessage = ""
	return s
}

func nonNilFeedback(f Feedback) Feedback {
	if f == nil {
		return Feedback{}
	}
	return f
}

func errorMessage(msg string) string {
	if msg == "" {
		return DefaultErrorMessage
	}
	return msg
}
