package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/runpod"
)

// Recorder persists finished runs. Implementations must tolerate concurrent
// calls; failures are logged by the caller, never surfaced to the job owner.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// Notifier receives terminal-outcome events for finished runs. All methods
// are best-effort fire-and-forget.
type Notifier interface {
	JobCompleted(ctx context.Context, jobID, instance string, took time.Duration)
	JobFailed(ctx context.Context, jobID, instance, reason string)
	JobCancelled(ctx context.Context, jobID, instance string)
}

// RunRecord is the journal entry for one finished run.
type RunRecord struct {
	JobID       string
	Instance    string
	EndpointID  string
	Outcome     Outcome
	Output      json.RawMessage
	Reason      string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// Client submits jobs and blocks until they finish. It is safe for
// concurrent use; every Run owns its own poller and the runs share only the
// registry.
type Client struct {
	transport runpod.Service
	registry  *Registry
	policy    Policy
	logger    *slog.Logger
	recorder  Recorder
	notifier  Notifier
	now       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRecorder attaches a journal for finished runs.
func WithRecorder(recorder Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithNotifier attaches a terminal-outcome notifier.
func WithNotifier(notifier Notifier) ClientOption {
	return func(c *Client) {
		c.notifier = notifier
	}
}

// WithRetryPolicy overrides the transient-error retry policy used by every
// run's poller.
func WithRetryPolicy(policy Policy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds the job facade on a transport and a shared registry.
func NewClient(transport runpod.Service, registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		registry:  registry,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the shared in-flight job table, for callers that serve
// job listings or cancel requests.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Run submits payload to the instance's endpoint and blocks until the job
// reaches a terminal outcome. onJobID, when non-nil, fires exactly once as
// soon as the remote id is known, before the first poll, so callers can
// expose the id for cancellation while the run is still in flight.
//
// On success the worker's output document is returned. Every other outcome
// maps to a sentinel error: ErrSubmission when the job never started,
// ErrCancelled, ErrTimedOut, ErrRetriesExhausted when polling gave up, and
// ErrRemoteFailed (as a *RemoteFailure) when the worker reported failure.
func (c *Client) Run(ctx context.Context, inst config.ResolvedInstance, payload json.RawMessage, onJobID func(string)) (json.RawMessage, error) {
	requestID := uuid.NewString()
	logger := logging.NewComponentLogger(c.logger, "jobs").With(
		logging.String(logging.FieldInstance, inst.Name),
		logging.String(logging.FieldRequestID, requestID),
	)

	submittedAt := c.now()
	handle, err := c.transport.Submit(ctx, inst.EndpointID, inst.APIKey, payload)
	if err != nil {
		logger.Error("job submission failed", logging.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	logger.Info("job submitted",
		logging.String(logging.FieldJobID, handle.ID),
		logging.String(logging.FieldEndpoint, handle.EndpointID),
	)

	c.registry.Register(handle.ID, inst.Name, inst.EndpointID, inst.APIKey)
	if onJobID != nil {
		onJobID(handle.ID)
	}

	poller := NewPoller(c.transport, c.registry, inst.APIKey,
		WithPollInterval(inst.PollInterval),
		WithJobTimeout(inst.Timeout),
		WithPolicy(c.policy),
		WithPollerLogger(logger),
	)
	result, waitErr := poller.Wait(ctx, handle)
	finishedAt := c.now()

	c.record(ctx, logger, RunRecord{
		JobID:       handle.ID,
		Instance:    inst.Name,
		EndpointID:  inst.EndpointID,
		Outcome:     result.Outcome,
		Output:      result.Output,
		Reason:      failureReason(result, waitErr),
		SubmittedAt: submittedAt,
		FinishedAt:  finishedAt,
	})
	c.notify(ctx, inst.Name, handle.ID, result, finishedAt.Sub(submittedAt))

	switch result.Outcome {
	case OutcomeCompleted:
		logger.Info("job completed", logging.String(logging.FieldJobID, handle.ID))
		return result.Output, nil
	case OutcomeCancelled:
		if waitErr != nil {
			return nil, fmt.Errorf("job %s: %w: %w", handle.ID, ErrCancelled, waitErr)
		}
		return nil, fmt.Errorf("job %s: %w", handle.ID, ErrCancelled)
	case OutcomeTimedOut:
		return nil, fmt.Errorf("job %s: %w after %s", handle.ID, ErrTimedOut, inst.Timeout)
	default:
		if waitErr != nil {
			return nil, fmt.Errorf("job %s: %w", handle.ID, waitErr)
		}
		return nil, &RemoteFailure{JobID: handle.ID, Reason: result.Reason}
	}
}

func (c *Client) record(ctx context.Context, logger *slog.Logger, rec RunRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		logger.Warn("failed to journal finished run",
			logging.String(logging.FieldJobID, rec.JobID),
			logging.Error(err),
		)
	}
}

func (c *Client) notify(ctx context.Context, instance, jobID string, result Result, took time.Duration) {
	if c.notifier == nil {
		return
	}
	switch result.Outcome {
	case OutcomeCompleted:
		c.notifier.JobCompleted(ctx, jobID, instance, took)
	case OutcomeCancelled:
		c.notifier.JobCancelled(ctx, jobID, instance)
	case OutcomeTimedOut:
		c.notifier.JobFailed(ctx, jobID, instance, "deadline exceeded")
	default:
		c.notifier.JobFailed(ctx, jobID, instance, result.Reason)
	}
}

func failureReason(result Result, waitErr error) string {
	if result.Reason != "" {
		return result.Reason
	}
	if waitErr != nil {
		return waitErr.Error()
	}
	return ""
}
