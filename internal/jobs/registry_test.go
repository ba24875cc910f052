package jobs

import (
	"context"
	"testing"
)

func TestRegistryTracksLifecycle(t *testing.T) {
	registry := NewRegistry(&fakeTransport{cancelOK: true}, nil)

	registry.Register("job-1", "images", "ep-1", "key")
	registry.Register("job-2", "video", "ep-2", "key")
	if got := registry.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	active := registry.Active()
	if len(active) != 2 {
		t.Fatalf("Active() returned %d jobs, want 2", len(active))
	}
	for _, job := range active {
		if job.Cancelled {
			t.Fatalf("job %s unexpectedly cancelled", job.JobID)
		}
		if job.RegisteredAt.IsZero() {
			t.Fatalf("job %s missing registration time", job.JobID)
		}
	}

	registry.Unregister("job-1")
	registry.Unregister("job-1")
	registry.Unregister("never-registered")
	if got := registry.Len(); got != 1 {
		t.Fatalf("Len() after unregister = %d, want 1", got)
	}
}

func TestMarkCancelledFlagsJobAndFiresRemoteCancel(t *testing.T) {
	transport := &fakeTransport{cancelOK: true}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	if !registry.MarkCancelled(context.Background(), "job-1") {
		t.Fatal("MarkCancelled returned false for registered job")
	}
	if !registry.IsCancelled("job-1") {
		t.Fatal("cancel flag not set")
	}
	if got := transport.cancelledJobs(); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("remote cancels = %v, want [job-1]", got)
	}
}

func TestMarkCancelledTwiceIsIdempotent(t *testing.T) {
	transport := &fakeTransport{cancelOK: true}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	for i := 0; i < 2; i++ {
		if !registry.MarkCancelled(context.Background(), "job-1") {
			t.Fatalf("MarkCancelled call %d returned false", i+1)
		}
	}
	if !registry.IsCancelled("job-1") {
		t.Fatal("cancel flag not set after repeated cancels")
	}
	// The flag flips once; the remote cancel is re-sent each time and its
	// result ignored either way.
	if got := transport.cancelledJobs(); len(got) != 2 || got[0] != "job-1" || got[1] != "job-1" {
		t.Fatalf("remote cancels = %v, want [job-1 job-1]", got)
	}
}

func TestMarkCancelledUnknownJobReturnsFalse(t *testing.T) {
	transport := &fakeTransport{cancelOK: true}
	registry := NewRegistry(transport, nil)

	if registry.MarkCancelled(context.Background(), "ghost") {
		t.Fatal("MarkCancelled returned true for unknown job")
	}
	if len(transport.cancelledJobs()) != 0 {
		t.Fatal("remote cancel fired for unknown job")
	}
}

func TestMarkCancelledSwallowsRemoteFailure(t *testing.T) {
	transport := &fakeTransport{cancelOK: false}
	registry := NewRegistry(transport, nil)
	registry.Register("job-1", "images", "ep-1", "key")

	if !registry.MarkCancelled(context.Background(), "job-1") {
		t.Fatal("MarkCancelled should succeed even when the remote cancel fails")
	}
	if !registry.IsCancelled("job-1") {
		t.Fatal("cancel flag must stick regardless of the remote result")
	}
}

func TestIsCancelledUnknownJobReportsFalse(t *testing.T) {
	registry := NewRegistry(&fakeTransport{}, nil)
	if registry.IsCancelled("ghost") {
		t.Fatal("unknown job reported cancelled")
	}
}
