package session

import "strings"

// StreamText is the partial analysis text of one attempt. Values are
// immutable; every operation returns the next value.
type StreamText string

// Reset starts a new attempt with empty text.
func (StreamText) Reset() StreamText {
	return ""
}

// Append adds chunk when status accepts streamed text. Chunks that arrive in
// any other status are stray (e.g. delivered after a reset) and are dropped.
func (t StreamText) Append(status Status, chunk string) StreamText {
	if !status.Streams() {
		return t
	}
	return t + StreamText(chunk)
}

// Extend replaces the text with full when full continues the current text.
// Anything else would shrink or rewrite what the consumer already saw.
func (t StreamText) Extend(full string) StreamText {
	if len(full) <= len(t) || !strings.HasPrefix(full, string(t)) {
		return t
	}
	return StreamText(full)
}

func (t StreamText) String() string {
	return string(t)
}
