package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/dlx/internal/shared"
)

// APIResponse is a raw proxy response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// apiError pulls a message out of an error body. FastAPI uses "detail", the engine uses "error".
func (r *APIResponse) apiError() error {
	msg := strings.TrimSpace(string(r.Body))
	if m, ok := r.JSONData.(map[string]any); ok {
		for _, key := range []string{"error", "detail", "message"} {
			if s, ok := m[key].(string); ok && s != "" {
				msg = s
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(r.StatusCode)
	}

	if r.StatusCode == http.StatusServiceUnavailable || r.StatusCode == http.StatusBadGateway {
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, msg)
	}
	return fmt.Errorf("%w (%d): %s", shared.ErrAPIRequest, r.StatusCode, msg)
}

// Post sends data as JSON to path and returns the raw response.
func (c *Client) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return c.do(ctx, http.MethodPost, path, data)
}

func (c *Client) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// send encodes payload, performs the request and returns the body of a successful response as a string.
func (c *Client) send(ctx context.Context, method, path string, payload any) (string, error) {
	var data []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode request: %w", err)
		}
		data = encoded
	}

	resp, err := c.do(ctx, method, path, data)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", resp.apiError()
	}
	return string(resp.Body), nil
}
