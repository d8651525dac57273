package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// Decode translates one named frame into an internal event. Frames with an
// unknown name decode to session.Unrecognized. A payload that is not valid
// JSON for its frame returns an error; callers drop such frames.
func Decode(name string, data []byte) (session.Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	if name == "" || name == defaultFrameName {
		var typed struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &typed); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", defaultFrameName, err)
		}
		if typed.Type == "" {
			return session.Unrecognized{Tag: defaultFrameName}, nil
		}
		name = typed.Type
	}

	switch name {
	case EventTypeConnected:
		return session.Connected{}, nil

	case EventTypeSessionStatus:
		var p SessionStatusPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if p.SessionData == nil || p.SessionData.Status == "" {
			return nil, fmt.Errorf("decode %s frame: missing sessionData.status", name)
		}
		return p.SessionData.Snapshot(), nil

	case EventTypeUploadStarted:
		return session.UploadStarted{}, nil

	case EventTypeUploadCompleted:
		return session.UploadCompleted{}, nil

	case EventTypeExtractionStarted:
		return session.ExtractionStarted{}, nil

	case EventTypeExtractionCompleted:
		var p ExtractionCompletedPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		ev := session.ExtractionCompleted{}
		if p.ExtractionInfo != nil {
			ev.Info = *p.ExtractionInfo
		}
		return ev, nil

	case EventTypeAnalysisStarted:
		return session.AnalysisStarted{}, nil

	case EventTypeAnalysisStreaming:
		var p AnalysisStreamingPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return session.AnalysisStreaming{Content: p.Content}, nil

	case EventTypeAnalysisCompleted:
		var p AnalysisCompletedPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return session.AnalysisCompleted{Feedback: p.Feedback}, nil

	case EventTypeRetryStarted:
		var p RetryStartedPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return session.RetryStarted{Attempt: p.RetryInfo.Attempt}, nil

	case EventTypeErrorOccurred:
		var p ErrorOccurredPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return session.ErrorOccurred{Message: p.ResolvedMessage()}, nil

	default:
		return session.Unrecognized{Tag: name}, nil
	}
}

func unmarshal(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", name, err)
	}
	return nil
}
