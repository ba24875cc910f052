package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"courier/internal/api"
)

func TestClientSendsBearerTokenAndDecodesResponses(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42})
	}))
	defer server.Close()

	client, err := New(server.URL, "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/api/status" {
		t.Fatalf("path = %q", gotPath)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("status = %+v", status)
	}
}

func TestClientPrependsSchemeToBareBindAddress(t *testing.T) {
	client, err := New("127.0.0.1:7499", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.baseURL != "http://127.0.0.1:7499" {
		t.Fatalf("base url = %q", client.baseURL)
	}
}

func TestSubmitPostsPayload(t *testing.T) {
	var gotBody api.SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{JobID: "job-1", Instance: "images"})
	}))
	defer server.Close()

	client, _ := New(server.URL, "")
	resp, err := client.Submit(context.Background(), "images", json.RawMessage(`{"prompt":"cat"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Fatalf("job id = %q", resp.JobID)
	}
	if gotBody.Instance != "images" || string(gotBody.Input) != `{"prompt":"cat"}` {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestCancelHitsJobPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(api.CancelResponse{JobID: "job-1", Cancelled: true})
	}))
	defer server.Close()

	client, _ := New(server.URL, "")
	resp, err := client.Cancel(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if gotPath != "/api/jobs/job-1/cancel" {
		t.Fatalf("path = %q", gotPath)
	}
	if !resp.Cancelled {
		t.Fatalf("response = %+v", resp)
	}
}

func TestClientSurfacesDaemonErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"job not found"}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, "")
	_, err := client.Cancel(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "job not found"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
}

func TestClientTagsConnectionFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client, _ := New(server.URL, "")
	_, err := client.Status(context.Background())
	if !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("error = %v, want ErrDaemonUnavailable", err)
	}
}
