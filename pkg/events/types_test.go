package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionChannel(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		want      string
	}{
		{
			name:      "formats session channel correctly",
			sessionID: "abc-123",
			want:      "session:abc-123",
		},
		{
			name:      "handles UUID format",
			sessionID: "550e8400-e29b-41d4-a716-446655440000",
			want:      "session:550e8400-e29b-41d4-a716-446655440000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionChannel(tt.sessionID))
		})
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []string{
		EventTypeConnected,
		EventTypeSessionStatus,
		EventTypeUploadStarted,
		EventTypeUploadCompleted,
		EventTypeExtractionStarted,
		EventTypeExtractionCompleted,
		EventTypeAnalysisStarted,
		EventTypeAnalysisStreaming,
		EventTypeAnalysisCompleted,
		EventTypeRetryStarted,
		EventTypeErrorOccurred,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ, "event type should not be empty")
		assert.False(t, seen[typ], "duplicate event type: %s", typ)
		seen[typ] = true
	}
}
