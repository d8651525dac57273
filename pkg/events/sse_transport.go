package events

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/resume-analyzer/statuswatch/pkg/version"
)

// SSETransport connects to GET {baseURL}/sessions/{id}/events and reads
// Server-Sent Events frames.
type SSETransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewSSETransport creates an SSE transport. The HTTP client must not carry a
// global timeout: the stream stays open for the whole session. A nil client
// uses a dedicated client without timeout.
func NewSSETransport(baseURL, token string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Connect opens the event stream for sessionID. The connection lives until
// ctx is cancelled, the server ends the stream, or Close is called.
func (t *SSETransport) Connect(ctx context.Context, sessionID string) (Conn, error) {
	endpoint := t.baseURL + "/sessions/" + url.PathEscape(sessionID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	case resp.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w %q", ErrUnexpectedContentType, resp.Header.Get("Content-Type"))
	}

	return &sseConn{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

type sseConn struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Next reads the next frame. Cancellation of the Connect context aborts a
// blocked read.
func (c *sseConn) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	name, data, err := readSSEEvent(c.reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		return Frame{}, err
	}
	if name == "" {
		name = defaultFrameName
	}
	return Frame{Name: name, Data: data}, nil
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
