package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Courier-Go/0.1.0"

// Sentinel markers for transport error classification.
var (
	// ErrTransient tags network failures and 5xx responses that are worth
	// retrying.
	ErrTransient = errors.New("transient transport failure")
	// ErrAPI tags application-level rejections (4xx, malformed bodies)
	// that retrying will not fix.
	ErrAPI = errors.New("serverless api error")
)

// Remote job status values. Any other string means the job is still running.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// Terminal reports whether a remote status ends the job lifecycle.
// Unrecognized statuses are treated as still running.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobHandle identifies a submitted job.
type JobHandle struct {
	ID          string
	EndpointID  string
	Status      string
	SubmittedAt time.Time
}

// StatusResponse models a single status poll result.
type StatusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Health models the endpoint health payload.
type Health struct {
	Workers struct {
		Idle    int `json:"idle"`
		Running int `json:"running"`
	} `json:"workers"`
	Jobs struct {
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		InProgress int `json:"inProgress"`
		InQueue    int `json:"inQueue"`
		Retried    int `json:"retried"`
	} `json:"jobs"`
}

// Service defines the transport operations the job lifecycle needs.
type Service interface {
	Submit(ctx context.Context, endpointID, apiKey string, payload json.RawMessage) (JobHandle, error)
	Status(ctx context.Context, endpointID, apiKey, jobID string) (StatusResponse, error)
	Cancel(ctx context.Context, endpointID, apiKey, jobID string) bool
	Health(ctx context.Context, endpointID, apiKey string) (Health, error)
}

// Client talks to the serverless HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a serverless API client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Submit starts an asynchronous job and returns its remote handle.
// The payload is forwarded untouched; its shape belongs to the worker.
func (c *Client) Submit(ctx context.Context, endpointID, apiKey string, payload json.RawMessage) (JobHandle, error) {
	if strings.TrimSpace(endpointID) == "" {
		return JobHandle{}, errors.New("endpoint id required")
	}
	if len(payload) == 0 {
		return JobHandle{}, errors.New("payload required")
	}

	url := fmt.Sprintf("%s/%s/run", c.baseURL, endpointID)
	body, err := c.do(ctx, http.MethodPost, url, apiKey, payload)
	if err != nil {
		return JobHandle{}, err
	}

	var decoded struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return JobHandle{}, fmt.Errorf("%w: decode run response: %w", ErrAPI, err)
	}
	if decoded.ID == "" {
		return JobHandle{}, fmt.Errorf("%w: run response missing job id", ErrAPI)
	}
	return JobHandle{
		ID:          decoded.ID,
		EndpointID:  endpointID,
		Status:      decoded.Status,
		SubmittedAt: time.Now(),
	}, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, endpointID, apiKey, jobID string) (StatusResponse, error) {
	if strings.TrimSpace(jobID) == "" {
		return StatusResponse{}, errors.New("job id required")
	}

	url := fmt.Sprintf("%s/%s/status/%s", c.baseURL, endpointID, jobID)
	body, err := c.do(ctx, http.MethodGet, url, apiKey, nil)
	if err != nil {
		return StatusResponse{}, err
	}

	var decoded StatusResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return StatusResponse{}, fmt.Errorf("%w: decode status response: %w", ErrAPI, err)
	}
	if decoded.ID == "" {
		decoded.ID = jobID
	}
	return decoded, nil
}

// Cancel asks the worker side to stop a job. The result is advisory: the
// poll loop remains the authority on how the job closes out.
func (c *Client) Cancel(ctx context.Context, endpointID, apiKey, jobID string) bool {
	if strings.TrimSpace(jobID) == "" {
		return false
	}
	url := fmt.Sprintf("%s/%s/cancel/%s", c.baseURL, endpointID, jobID)
	_, err := c.do(ctx, http.MethodPost, url, apiKey, nil)
	return err == nil
}

// Health fetches worker and queue counts for an endpoint.
func (c *Client) Health(ctx context.Context, endpointID, apiKey string) (Health, error) {
	if strings.TrimSpace(endpointID) == "" {
		return Health{}, errors.New("endpoint id required")
	}
	url := fmt.Sprintf("%s/%s/health", c.baseURL, endpointID)
	body, err := c.do(ctx, http.MethodGet, url, apiKey, nil)
	if err != nil {
		return Health{}, err
	}
	var decoded Health
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Health{}, fmt.Errorf("%w: decode health response: %w", ErrAPI, err)
	}
	return decoded, nil
}

func (c *Client) do(ctx context.Context, method, url, apiKey string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransient, method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s returned %d", ErrTransient, url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrAPI, url, resp.StatusCode, apiErrorDetail(body))
	}
	return body, nil
}

func apiErrorDetail(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	if detail == "" {
		detail = "no error detail"
	}
	return detail
}
