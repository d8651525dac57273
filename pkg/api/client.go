// Package api is the REST client for the session endpoints of the resume
// analysis backend: the status query used as a pull fallback and the retry
// command.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resume-analyzer/statuswatch/pkg/version"
)

// DefaultTimeout bounds each REST request when none is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to {baseURL}/sessions/{id}/...
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client. A non-positive timeout uses DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetSessionStatus fetches the current snapshot of a session.
func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, sessionID, "status", &resp); err != nil {
		return nil, fmt.Errorf("get session status: %w", err)
	}
	if resp.Status == "" {
		return nil, fmt.Errorf("get session status: response for %s has no status", sessionID)
	}
	return &resp, nil
}

// RetryAnalysis asks the backend to re-run the analysis of a failed session.
func (c *Client) RetryAnalysis(ctx context.Context, sessionID string) error {
	var resp RetryResponse
	if err := c.do(ctx, http.MethodPost, sessionID, "retry", &resp); err != nil {
		return fmt.Errorf("retry analysis: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "backend declined the retry"
		}
		return fmt.Errorf("retry analysis: %s", msg)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, sessionID, action string, out any) error {
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(sessionID) + "/" + action
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var body errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &body) == nil && body.text() != "" {
			msg = body.text()
		}
		return mapStatusError(resp.StatusCode, msg, sessionID)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
