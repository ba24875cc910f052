package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"courier/internal/config"
)

type captured struct {
	title    string
	priority string
	tags     string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func serviceFor(topic string) Service {
	cfg := &config.Config{}
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.Completed = true
	cfg.Notifications.Failed = true
	return NewService(cfg)
}

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	service := serviceFor("")
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.NotifyJobCompleted(context.Background(), "job-1", "images", time.Minute); err != nil {
		t.Fatalf("noop returned error: %v", err)
	}
}

func TestNotifyJobCompletedSendsMessage(t *testing.T) {
	server, requests := newCaptureServer(t)
	service := serviceFor(server.URL)

	if err := service.NotifyJobCompleted(context.Background(), "job-1", "images", 90*time.Second); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].title != "Courier - Job Complete" {
		t.Fatalf("title = %q", got[0].title)
	}
	if !strings.Contains(got[0].body, "job-1") || !strings.Contains(got[0].body, "1m30s") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestNotifyJobFailedSendsHighPriority(t *testing.T) {
	server, requests := newCaptureServer(t)
	service := serviceFor(server.URL)

	if err := service.NotifyJobFailed(context.Background(), "job-1", "images", "cuda out of memory"); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("priority = %q", got[0].priority)
	}
	if !strings.Contains(got[0].body, "cuda out of memory") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestOutcomeTogglesSuppressDelivery(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := &config.Config{}
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	service := NewService(cfg)

	if err := service.NotifyJobCompleted(context.Background(), "job-1", "images", time.Second); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	if err := service.NotifyJobFailed(context.Background(), "job-1", "images", "boom"); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if got := requests(); len(got) != 0 {
		t.Fatalf("toggled-off outcomes still sent %d notifications", len(got))
	}

	// Cancellations have no toggle.
	if err := service.NotifyJobCancelled(context.Background(), "job-1", "images"); err != nil {
		t.Fatalf("NotifyJobCancelled: %v", err)
	}
	if got := requests(); len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
}

func TestSendReportsServerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer server.Close()
	service := serviceFor(server.URL)

	err := service.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %v", err)
	}
}
