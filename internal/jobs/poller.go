package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier/internal/logging"
	"courier/internal/runpod"
)

// Default pacing for the poll loop. Image endpoints typically override the
// interval down to 2s; video endpoints keep the defaults.
const (
	DefaultPollInterval = 4 * time.Second
	DefaultJobTimeout   = 900 * time.Second
)

// Outcome is the terminal state of one job lifecycle.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Result captures how a poll loop ended. Output is set only for
// OutcomeCompleted; Reason carries the worker-reported detail for
// OutcomeFailed.
type Result struct {
	Outcome Outcome
	Output  json.RawMessage
	Reason  string
}

// Poller walks a single submitted job to a terminal outcome. One poller
// serves exactly one job and is owned by the goroutine that submitted it.
type Poller struct {
	transport runpod.Service
	registry  *Registry
	policy    Policy
	logger    *slog.Logger
	apiKey    string
	interval  time.Duration
	timeout   time.Duration

	// Overridable in tests so loops run without real time passing.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the delay between status checks.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithJobTimeout overrides the overall deadline measured from submission.
func WithJobTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPolicy overrides the transient-error retry policy.
func WithPolicy(policy Policy) PollerOption {
	return func(p *Poller) {
		p.policy = policy
	}
}

// WithPollerLogger attaches a logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoller builds a poller for one job's lifecycle.
func NewPoller(transport runpod.Service, registry *Registry, apiKey string, opts ...PollerOption) *Poller {
	p := &Poller{
		transport: transport,
		registry:  registry,
		apiKey:    apiKey,
		interval:  DefaultPollInterval,
		timeout:   DefaultJobTimeout,
		logger:    logging.NewNop(),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until the job reaches a terminal outcome. The registry entry
// for the job is removed on every exit path. The returned error is non-nil
// only for transport-derived failures (retry budget exhausted, non-retryable
// API errors) and context cancellation; expected terminal states arrive as
// Result values.
func (p *Poller) Wait(ctx context.Context, handle runpod.JobHandle) (Result, error) {
	defer p.registry.Unregister(handle.ID)

	logger := p.logger.With(
		logging.String(logging.FieldJobID, handle.ID),
		logging.String(logging.FieldEndpoint, handle.EndpointID),
	)

	start := p.now()
	last := runpod.StatusResponse{ID: handle.ID, Status: handle.Status}
	attempts := 0

	for !runpod.Terminal(last.Status) {
		if p.registry.IsCancelled(handle.ID) {
			logger.Info("cancel flag observed; stopping poll loop")
			return Result{Outcome: OutcomeCancelled}, nil
		}

		if elapsed := p.now().Sub(start); elapsed > p.timeout {
			p.reportTimeout(ctx, logger, handle, elapsed)
			return Result{Outcome: OutcomeTimedOut}, nil
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return Result{Outcome: OutcomeCancelled}, err
		}

		resp, err := p.transport.Status(ctx, handle.EndpointID, p.apiKey, handle.ID)
		for err != nil {
			attempts++
			decision := p.policy.Decide(err, attempts)
			if !decision.Retry {
				if errors.Is(err, runpod.ErrTransient) {
					return Result{Outcome: OutcomeFailed}, fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
				}
				return Result{Outcome: OutcomeFailed}, err
			}
			logger.Warn("status poll failed; retrying",
				logging.Error(err),
				logging.Int("attempt", attempts),
				logging.Duration("delay", decision.Delay),
			)
			if serr := p.sleep(ctx, decision.Delay); serr != nil {
				return Result{Outcome: OutcomeCancelled}, serr
			}
			resp, err = p.transport.Status(ctx, handle.EndpointID, p.apiKey, handle.ID)
		}
		attempts = 0

		if resp.Status != last.Status {
			logger.Info("job status changed",
				logging.String("from", last.Status),
				logging.String("to", resp.Status),
			)
		}
		last = resp
	}

	switch last.Status {
	case runpod.StatusCompleted:
		if len(last.Output) == 0 {
			// Submission can report COMPLETED directly; the output only
			// lives on the status endpoint.
			if resp, err := p.transport.Status(ctx, handle.EndpointID, p.apiKey, handle.ID); err == nil {
				last = resp
			}
		}
		return Result{Outcome: OutcomeCompleted, Output: last.Output}, nil
	case runpod.StatusCancelled:
		logger.Info("job cancelled remotely")
		return Result{Outcome: OutcomeCancelled}, nil
	default:
		return Result{Outcome: OutcomeFailed, Reason: last.Error}, nil
	}
}

// reportTimeout fires one best-effort final status check so a completion
// that landed inside the network-latency window is at least visible in the
// logs. The timeout outcome stands regardless: callers budget wall-clock
// time and get a predictable signal when the budget is exceeded.
func (p *Poller) reportTimeout(ctx context.Context, logger *slog.Logger, handle runpod.JobHandle, elapsed time.Duration) {
	logger.Warn("job exceeded its deadline",
		logging.Duration("elapsed", elapsed),
		logging.Duration("timeout", p.timeout),
	)
	resp, err := p.transport.Status(ctx, handle.EndpointID, p.apiKey, handle.ID)
	if err != nil {
		return
	}
	if resp.Status == runpod.StatusCompleted {
		logger.Warn("job completed after the deadline; reporting timeout anyway",
			logging.String("status", resp.Status),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
