package dragsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// client is a thin JSON client of the podium HTTP API.
type client struct {
	http *http.Client
	base string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http: &http.Client{Timeout: timeout},
		base: baseURL,
	}
}

// do sends body as JSON and decodes the response into out when the status
// is in want. Any other status is returned as ErrUnexpected with the body.
func (c *client) do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	for _, code := range want {
		if resp.StatusCode != code {
			continue
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s",
		ErrUnexpected, method, path, resp.StatusCode, bytes.TrimSpace(data))
}

func rankingPath(id string, parts ...string) string {
	p := "/rankings/" + url.PathEscape(id)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}
