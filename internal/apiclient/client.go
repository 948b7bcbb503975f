// Package apiclient talks to the local resticd HTTP API. The CLI job
// commands and the MCP server use it.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/resticd/internal/gateway"
	"github.com/flemzord/resticd/internal/jobs"
)

const maxResponseBytes = 10 << 20

// Sentinel errors matched by APIError.Is.
var (
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	ErrNotFound     = errors.New("apiclient: not found")
	ErrUnavailable  = errors.New("apiclient: service unavailable")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("apiclient: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes to the package sentinels.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusServiceUnavailable:
		return target == ErrUnavailable
	}
	return false
}

// Client is a thin HTTP wrapper around the /api/v1 endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the API at baseURL. A bare host:port is
// treated as http. The token may be empty.
func New(baseURL, token string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health returns the daemon health. A degraded daemon is not an error.
func (c *Client) Health(ctx context.Context) (*gateway.HealthResponse, error) {
	var out gateway.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", &out, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs returns the configured job names.
func (c *Client) Jobs(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Job returns one job definition with credentials masked.
func (c *Client) Job(ctx context.Context, name string) (*gateway.JobResponse, error) {
	var out gateway.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue asks the daemon to run a job now.
func (c *Client) Queue(ctx context.Context, name string) error {
	var out gateway.QueueResponse
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(name)+"/queue", &out)
}

// Runs returns the latest n runs of job, or of every job when job is
// empty. n <= 0 uses the server default.
func (c *Client) Runs(ctx context.Context, job string, n int) ([]*jobs.Run, error) {
	path := "/api/v1/runs"
	if job != "" {
		path = "/api/v1/jobs/" + url.PathEscape(job) + "/runs"
	}
	if n > 0 {
		path += "?limit=" + strconv.Itoa(n)
	}

	var out []*jobs.Run
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends a request and decodes a JSON body into out. Status codes in
// accept are decoded like 2xx.
func (c *Client) do(ctx context.Context, method, path string, out any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apiclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}
