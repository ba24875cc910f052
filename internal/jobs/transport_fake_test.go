package jobs

import (
	"context"
	"encoding/json"
	"sync"

	"courier/internal/runpod"
)

type statusStep struct {
	resp runpod.StatusResponse
	err  error
}

// fakeTransport scripts status responses in order; the last step repeats
// once the script runs out.
type fakeTransport struct {
	mu sync.Mutex

	submitHandle runpod.JobHandle
	submitErr    error
	submitCalls  int

	statusSteps []statusStep
	statusCalls int

	cancelOK    bool
	cancelCalls []string
}

func (f *fakeTransport) Submit(_ context.Context, endpointID, _ string, _ json.RawMessage) (runpod.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return runpod.JobHandle{}, f.submitErr
	}
	handle := f.submitHandle
	if handle.EndpointID == "" {
		handle.EndpointID = endpointID
	}
	return handle, nil
}

func (f *fakeTransport) Status(context.Context, string, string, string) (runpod.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusSteps) == 0 {
		f.statusCalls++
		return runpod.StatusResponse{Status: runpod.StatusInProgress}, nil
	}
	idx := f.statusCalls
	if idx >= len(f.statusSteps) {
		idx = len(f.statusSteps) - 1
	}
	f.statusCalls++
	step := f.statusSteps[idx]
	return step.resp, step.err
}

func (f *fakeTransport) Cancel(_ context.Context, _, _, jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, jobID)
	return f.cancelOK
}

func (f *fakeTransport) Health(context.Context, string, string) (runpod.Health, error) {
	return runpod.Health{}, nil
}

func (f *fakeTransport) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeTransport) cancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelCalls...)
}
