package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/logging"
)

const maxSubmitBody = 10 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJobCancel))
	mux.HandleFunc("/api/runs", authMiddleware(token, srv.handleRuns))
	mux.HandleFunc("/api/health", authMiddleware(token, srv.handleHealth))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		ActiveJobs:    status.ActiveJobs,
		Instances:     status.Instances,
		JournalDBPath: status.JournalDBPath,
		LockFilePath:  status.LockFilePath,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.submitJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, _ *http.Request) {
	active := s.daemon.ActiveJobs()
	sort.Slice(active, func(i, j int) bool {
		return active[i].RegisteredAt.Before(active[j].RegisteredAt)
	})
	out := make([]api.Job, 0, len(active))
	for _, job := range active {
		out = append(out, api.Job{
			JobID:        job.JobID,
			Instance:     job.Instance,
			EndpointID:   job.EndpointID,
			Cancelled:    job.Cancelled,
			RegisteredAt: job.RegisteredAt,
		})
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: out})
}

func (s *apiServer) submitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmitBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	var req api.SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid submit request: "+err.Error())
		return
	}
	if len(req.Input) == 0 {
		s.writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	jobID, instance, err := s.daemon.Submit(r.Context(), req.Instance, req.Input)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: jobID, Instance: instance})
}

func (s *apiServer) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || jobID == "" || strings.Contains(jobID, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	if !s.daemon.Cancel(r.Context(), jobID) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{JobID: jobID, Cancelled: true})
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	store := s.daemon.Journal()
	if store == nil {
		s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: nil})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	entries, err := store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs := make([]api.Run, 0, len(entries))
	for _, entry := range entries {
		runs = append(runs, api.Run{
			JobID:       entry.JobID,
			Instance:    entry.Instance,
			EndpointID:  entry.EndpointID,
			Outcome:     string(entry.Outcome),
			Output:      entry.Output,
			Error:       entry.ErrorMessage,
			SubmittedAt: entry.SubmittedAt,
			FinishedAt:  entry.FinishedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{
		Runs: runs,
		Stats: api.RunStats{
			Total:     stats.Total,
			Completed: stats.Completed,
			Failed:    stats.Failed,
			Cancelled: stats.Cancelled,
			TimedOut:  stats.TimedOut,
		},
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	probes := s.daemon.Health(r.Context())
	out := make([]api.InstanceHealth, 0, len(probes))
	for _, probe := range probes {
		health := api.InstanceHealth{
			Instance:   probe.Instance,
			EndpointID: probe.EndpointID,
		}
		if probe.Err != nil {
			health.Error = probe.Err.Error()
		} else {
			health.WorkersIdle = probe.Health.Workers.Idle
			health.WorkersRunning = probe.Health.Workers.Running
			health.JobsInQueue = probe.Health.Jobs.InQueue
			health.JobsInProgress = probe.Health.Jobs.InProgress
			health.JobsCompleted = probe.Health.Jobs.Completed
			health.JobsFailed = probe.Health.Jobs.Failed
		}
		out = append(out, health)
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Instances: out})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
