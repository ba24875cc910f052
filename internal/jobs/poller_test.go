package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"courier/internal/runpod"
)

// fastClock replaces the poller's clock so loops finish without real time
// passing: every sleep advances the clock by the requested duration.
func fastClock(p *Poller) {
	clock := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return clock }
	p.sleep = func(_ context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return nil
	}
}

func testHandle() runpod.JobHandle {
	return runpod.JobHandle{ID: "job-1", EndpointID: "ep-1", Status: runpod.StatusInQueue}
}

func TestWaitFollowsJobToCompletion(t *testing.T) {
	transport := &fakeTransport{
		statusSteps: []statusStep{
			{resp: runpod.StatusResponse{ID: "job-1", Status: runpod.StatusInQueue}},
			{resp: runpod.StatusResponse{ID: "job-1", Status: runpod.StatusInProgress}},
			{resp: runpod.StatusResponse{ID: "job-1", Status: runpod.StatusCompleted, Output: json.RawMessage(`{"image":"out.png"}`)}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCompleted)
	}
	if string(result.Output) != `{"image":"out.png"}` {
		t.Fatalf("output = %s", result.Output)
	}
	if registry.Len() != 0 {
		t.Fatal("job still registered after completion")
	}
	if got := transport.statusCallCount(); got != 3 {
		t.Fatalf("status calls = %d, want 3", got)
	}
}

func TestWaitStopsWithinOneIntervalOfCancellation(t *testing.T) {
	transport := &fakeTransport{cancelOK: true}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	clock := time.Unix(1_700_000_000, 0)
	sleeps := 0
	poller.now = func() time.Time { return clock }
	poller.sleep = func(_ context.Context, d time.Duration) error {
		clock = clock.Add(d)
		sleeps++
		if sleeps == 2 {
			registry.MarkCancelled(context.Background(), "job-1")
		}
		return nil
	}

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCancelled)
	}
	// The flag was set during the second sleep; the loop must notice at the
	// very next iteration rather than polling again.
	if got := transport.statusCallCount(); got != 2 {
		t.Fatalf("status calls = %d, want 2", got)
	}
	if registry.Len() != 0 {
		t.Fatal("job still registered after cancellation")
	}
}

func TestWaitTimesOutEvenWhenTheFinalCheckSeesCompletion(t *testing.T) {
	transport := &fakeTransport{
		statusSteps: []statusStep{
			{resp: runpod.StatusResponse{Status: runpod.StatusInProgress}},
			{resp: runpod.StatusResponse{Status: runpod.StatusInProgress}},
			{resp: runpod.StatusResponse{Status: runpod.StatusCompleted, Output: json.RawMessage(`{}`)}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key", WithJobTimeout(7*time.Second))
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeTimedOut)
	}
	// Two regular polls plus the best-effort final check.
	if got := transport.statusCallCount(); got != 3 {
		t.Fatalf("status calls = %d, want 3", got)
	}
	if registry.Len() != 0 {
		t.Fatal("job still registered after timeout")
	}
}

func TestWaitRetriesTransientFailuresAndResetsTheCounter(t *testing.T) {
	transient := fmt.Errorf("%w: connection reset", runpod.ErrTransient)
	transport := &fakeTransport{
		statusSteps: []statusStep{
			{err: transient},
			{err: transient},
			{err: transient},
			{resp: runpod.StatusResponse{Status: runpod.StatusInProgress}},
			{err: transient},
			{resp: runpod.StatusResponse{Status: runpod.StatusCompleted, Output: json.RawMessage(`{"ok":true}`)}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key", WithPolicy(Policy{MaxAttempts: 3, Delay: time.Second}))
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCompleted)
	}
	// Three consecutive failures exhaust a ceiling of three only if the
	// counter never resets; the successful poll in between must clear it.
	if got := transport.statusCallCount(); got != 6 {
		t.Fatalf("status calls = %d, want 6", got)
	}
}

func TestWaitGivesUpAfterTheRetryBudget(t *testing.T) {
	transient := fmt.Errorf("%w: gateway unavailable", runpod.ErrTransient)
	transport := &fakeTransport{
		statusSteps: []statusStep{{err: transient}},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, runpod.ErrTransient) {
		t.Fatalf("error should wrap the transport failure, got %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFailed)
	}
	// Five retries after the first failure, then give up on the sixth.
	if got := transport.statusCallCount(); got != DefaultMaxAttempts+1 {
		t.Fatalf("status calls = %d, want %d", got, DefaultMaxAttempts+1)
	}
	if registry.Len() != 0 {
		t.Fatal("job still registered after giving up")
	}
}

func TestWaitFailsImmediatelyOnNonRetryableErrors(t *testing.T) {
	apiErr := fmt.Errorf("%w: endpoint returned 404", runpod.ErrAPI)
	transport := &fakeTransport{
		statusSteps: []statusStep{{err: apiErr}},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if !errors.Is(err, runpod.ErrAPI) {
		t.Fatalf("error = %v, want ErrAPI", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatal("api errors must not count as retry exhaustion")
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFailed)
	}
	if got := transport.statusCallCount(); got != 1 {
		t.Fatalf("status calls = %d, want 1", got)
	}
}

func TestWaitSurfacesRemoteFailureDetail(t *testing.T) {
	transport := &fakeTransport{
		statusSteps: []statusStep{
			{resp: runpod.StatusResponse{Status: runpod.StatusFailed, Error: "worker out of memory"}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFailed)
	}
	if result.Reason != "worker out of memory" {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestWaitHandlesRemoteCancellation(t *testing.T) {
	transport := &fakeTransport{
		statusSteps: []statusStep{
			{resp: runpod.StatusResponse{Status: runpod.StatusCancelled}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	fastClock(poller)

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCancelled)
	}
}

func TestWaitCompletionObservedByPollWinsOverCancelFlag(t *testing.T) {
	transport := &fakeTransport{
		cancelOK: true,
		statusSteps: []statusStep{
			{resp: runpod.StatusResponse{Status: runpod.StatusCompleted, Output: json.RawMessage(`{"done":1}`)}},
		},
	}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	poller := NewPoller(transport, registry, "key")
	clock := time.Unix(1_700_000_000, 0)
	poller.now = func() time.Time { return clock }
	poller.sleep = func(_ context.Context, d time.Duration) error {
		clock = clock.Add(d)
		// The cancel lands while the loop is between its cancel check and
		// the next poll; the completed result must win.
		registry.MarkCancelled(context.Background(), "job-1")
		return nil
	}

	result, err := poller.Wait(context.Background(), testHandle())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCompleted)
	}
	if string(result.Output) != `{"done":1}` {
		t.Fatalf("output = %s", result.Output)
	}
}
