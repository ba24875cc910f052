package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"courier/internal/config"
	"courier/internal/jobs"
	"courier/internal/journal"
	"courier/internal/logging"
	"courier/internal/runpod"
)

// Daemon coordinates background job execution and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *jobs.Client
	transport runpod.Service
	journal   *journal.Store

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	api *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	ActiveJobs    int
	Instances     []string
	JournalDBPath string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies. The journal store
// may be nil when persistence is disabled.
func New(cfg *config.Config, client *jobs.Client, transport runpod.Service, store *journal.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || client == nil || transport == nil || logger == nil {
		return nil, errors.New("daemon requires config, job client, transport, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		transport: transport,
		journal:   store,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api-server"))
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and begins serving the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another courier daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("courier daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("courier daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(_ context.Context) Status {
	instances := d.cfg.EnabledInstances()
	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		names = append(names, inst.Name)
	}
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		ActiveJobs:   d.client.Registry().Len(),
		Instances:    names,
		LockFilePath: d.lockPath,
	}
	if d.journal != nil {
		status.JournalDBPath = d.journal.Path()
	}
	return status
}

// ActiveJobs returns a snapshot of in-flight jobs.
func (d *Daemon) ActiveJobs() []jobs.ActiveJob {
	return d.client.Registry().Active()
}

// Submit resolves the instance, starts the job in the background, and
// returns as soon as the remote id is known. The run itself is bound to the
// daemon lifetime, not the submitting request, so it keeps polling after the
// caller disconnects.
func (d *Daemon) Submit(ctx context.Context, instanceName string, input json.RawMessage) (string, string, error) {
	inst, err := d.cfg.ResolveInstance(instanceName)
	if err != nil {
		return "", "", err
	}

	runCtx := d.ctx
	if runCtx == nil {
		runCtx = context.Background()
	}

	idCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		_, runErr := d.client.Run(runCtx, inst, input, func(id string) {
			idCh <- id
		})
		errCh <- runErr
	}()

	select {
	case id := <-idCh:
		return id, inst.Name, nil
	case runErr := <-errCh:
		return "", "", runErr
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// Cancel requests cancellation of an in-flight job. Returns false when the
// id is unknown.
func (d *Daemon) Cancel(ctx context.Context, jobID string) bool {
	return d.client.Registry().MarkCancelled(ctx, jobID)
}

// Health probes every enabled instance's endpoint.
func (d *Daemon) Health(ctx context.Context) []InstanceProbe {
	instances := d.cfg.EnabledInstances()
	timeout := time.Duration(d.cfg.RunPod.HealthTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	probes := make([]InstanceProbe, 0, len(instances))
	for _, inst := range instances {
		resolved, err := d.cfg.ResolveInstance(inst.Name)
		if err != nil {
			probes = append(probes, InstanceProbe{Instance: inst.Name, EndpointID: inst.EndpointID, Err: err})
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		health, err := d.transport.Health(probeCtx, resolved.EndpointID, resolved.APIKey)
		cancel()
		probes = append(probes, InstanceProbe{
			Instance:   inst.Name,
			EndpointID: inst.EndpointID,
			Health:     health,
			Err:        err,
		})
	}
	return probes
}

// InstanceProbe is one endpoint health probe result.
type InstanceProbe struct {
	Instance   string
	EndpointID string
	Health     runpod.Health
	Err        error
}

// Journal exposes the run journal, or nil when persistence is disabled.
func (d *Daemon) Journal() *journal.Store {
	return d.journal
}
