package notifications

import (
	"context"
	"log/slog"
	"time"

	"courier/internal/jobs"
	"courier/internal/logging"
)

// Adapter exposes a Service through the jobs.Notifier interface. Delivery
// failures are logged and swallowed so a broken notification channel never
// affects job outcomes.
type Adapter struct {
	service Service
	logger  *slog.Logger
}

var _ jobs.Notifier = (*Adapter)(nil)

// NewAdapter wraps a Service for use by the job facade.
func NewAdapter(service Service, logger *slog.Logger) *Adapter {
	return &Adapter{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

func (a *Adapter) JobCompleted(ctx context.Context, jobID, instance string, took time.Duration) {
	if err := a.service.NotifyJobCompleted(ctx, jobID, instance, took); err != nil {
		a.logDeliveryFailure(jobID, err)
	}
}

func (a *Adapter) JobFailed(ctx context.Context, jobID, instance, reason string) {
	if err := a.service.NotifyJobFailed(ctx, jobID, instance, reason); err != nil {
		a.logDeliveryFailure(jobID, err)
	}
}

func (a *Adapter) JobCancelled(ctx context.Context, jobID, instance string) {
	if err := a.service.NotifyJobCancelled(ctx, jobID, instance); err != nil {
		a.logDeliveryFailure(jobID, err)
	}
}

func (a *Adapter) logDeliveryFailure(jobID string, err error) {
	a.logger.Warn("notification delivery failed",
		logging.String(logging.FieldJobID, jobID),
		logging.Error(err),
	)
}
