package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"courier/internal/logging"
	"courier/internal/runpod"
)

// ActiveJob is a point-in-time snapshot of a registry entry.
type ActiveJob struct {
	JobID        string
	Instance     string
	EndpointID   string
	Cancelled    bool
	RegisteredAt time.Time
}

type record struct {
	instance     string
	endpointID   string
	apiKey       string
	cancelled    bool
	registeredAt time.Time
}

// Registry is the process-wide table of in-flight jobs. A job id present in
// the table means its poll loop is still active; absence means the loop has
// exited. A single mutex guards the table; it is held only for map access,
// never across network calls.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*record
	transport runpod.Service
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. The transport is used for
// best-effort remote cancellation; the logger may be nil.
func NewRegistry(transport runpod.Service, logger *slog.Logger) *Registry {
	return &Registry{
		jobs:      make(map[string]*record),
		transport: transport,
		logger:    logging.NewComponentLogger(logger, "job-registry"),
	}
}

// Register adds a job to the table. Called by the owning poller right after
// submission succeeds.
func (r *Registry) Register(jobID, instance, endpointID, apiKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID] = &record{
		instance:     instance,
		endpointID:   endpointID,
		apiKey:       apiKey,
		registeredAt: time.Now(),
	}
}

// Unregister removes a job from the table. Safe to call for ids that were
// never registered or were already removed.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// IsCancelled reports whether a cancel was requested for the job. Unknown
// ids report false.
func (r *Registry) IsCancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[jobID]
	return ok && rec.cancelled
}

// MarkCancelled flips the cancel flag for an in-flight job and fires a
// best-effort remote cancel. Returns false when the id is unknown. The flag
// never flips back; repeated calls are idempotent apart from re-sending the
// remote cancel, whose result is ignored either way because the poll loop is
// the authority that closes the job out.
func (r *Registry) MarkCancelled(ctx context.Context, jobID string) bool {
	r.mu.Lock()
	rec, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	rec.cancelled = true
	endpointID := rec.endpointID
	apiKey := rec.apiKey
	r.mu.Unlock()

	if r.transport != nil {
		if !r.transport.Cancel(ctx, endpointID, apiKey, jobID) {
			r.logger.Warn("remote cancel request failed; job will stop at its next poll",
				logging.String(logging.FieldJobID, jobID),
				logging.String(logging.FieldEndpoint, endpointID),
			)
		}
	}
	return true
}

// Active returns a snapshot of all in-flight jobs ordered by nothing in
// particular; callers sort for presentation.
func (r *Registry) Active() []ActiveJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveJob, 0, len(r.jobs))
	for id, rec := range r.jobs {
		out = append(out, ActiveJob{
			JobID:        id,
			Instance:     rec.instance,
			EndpointID:   rec.endpointID,
			Cancelled:    rec.cancelled,
			RegisteredAt: rec.registeredAt,
		})
	}
	return out
}

// Len reports the number of in-flight jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
