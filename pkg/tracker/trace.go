package tracker

import (
	"time"

	"github.com/resume-analyzer/statuswatch/pkg/session"
)

// Source identifies where an event came from.
type Source string

const (
	SourceStream Source = "stream"
	SourceQuery  Source = "query"
	SourcePoll   Source = "poll"
)

// TraceEvent describes one event processed by a handle.
type TraceEvent struct {
	HandleID  string
	SessionID string
	Source    Source
	Event     string
	From      session.Status
	To        session.Status
	// Applied is false when the event left the state unchanged.
	Applied bool
	Time    time.Time
}

// TraceFunc receives every processed event. It runs on the handle's event
// loop and must not block.
type TraceFunc func(TraceEvent)
