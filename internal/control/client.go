// Package control provides the HTTP client the CLI uses to talk to a
// running courierd instance.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courier/internal/api"
)

// ErrDaemonUnavailable tags connection failures so callers can suggest
// starting the daemon.
var ErrDaemonUnavailable = errors.New("courier daemon unavailable")

// Client talks to the courierd control API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a control client for the daemon listening on bind.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address required")
	}
	baseURL := bind
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

// Jobs lists in-flight jobs.
func (c *Client) Jobs(ctx context.Context) ([]api.Job, error) {
	var out api.JobListResponse
	if err := c.get(ctx, "/api/jobs", &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Submit starts a job and returns its acknowledgement.
func (c *Client) Submit(ctx context.Context, instance string, input json.RawMessage) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.post(ctx, "/api/jobs", api.SubmitRequest{Instance: instance, Input: input}, &out)
	return out, err
}

// Cancel requests cancellation of an in-flight job.
func (c *Client) Cancel(ctx context.Context, jobID string) (api.CancelResponse, error) {
	var out api.CancelResponse
	err := c.post(ctx, "/api/jobs/"+jobID+"/cancel", nil, &out)
	return out, err
}

// Runs fetches the most recent journaled runs.
func (c *Client) Runs(ctx context.Context, limit int) (api.RunListResponse, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out api.RunListResponse
	err := c.get(ctx, path, &out)
	return out, err
}

// Health fetches per-instance endpoint health.
func (c *Client) Health(ctx context.Context) ([]api.InstanceHealth, error) {
	var out api.HealthResponse
	if err := c.get(ctx, "/api/health", &out); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}
	return c.roundTrip(ctx, http.MethodPost, path, body, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, apiErrorDetail(resp.StatusCode, data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorDetail(status int, body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	return fmt.Sprintf("daemon returned %d", status)
}
