package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docs-assistant/internal/infrastructure/auth"
)

func (c *Client) newRequest(ctx context.Context, endpoint string, payload any, operation string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userHeader != "" && c.userID != "" {
		req.Header.Set(c.userHeader, c.userID)
	}
	return req, nil
}

// do sends the request with the current session and returns the response for
// a 2xx status along with the session used. Any other status is returned as
// *HTTPStatusError stamped with the session's credential generation.
func (c *Client) do(ctx context.Context, endpoint string, payload any, operation string) (*http.Response, *auth.Session, error) {
	session, err := c.sessions.AcquireSession(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire session for %s: %w", operation, err)
	}
	req, err := c.newRequest(ctx, endpoint, payload, operation)
	if err != nil {
		return nil, nil, err
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("vertex %s request: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		statusErr := formatHTTPError(operation, resp)
		statusErr.Generation = session.Generation
		return nil, nil, statusErr
	}
	return resp, session, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any, operation string) error {
	resp, _, err := c.do(ctx, endpoint, payload, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func formatHTTPError(operation string, resp *http.Response) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
