package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cutroom/internal/api"
	"cutroom/internal/queue"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "secret")
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestNewRejectsEmptyBind(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty bind")
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	})
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
}

func TestListJobsBuildsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("user") != "alice" {
			t.Errorf("user = %q", r.URL.Query().Get("user"))
		}
		if got := r.URL.Query()["status"]; len(got) != 2 || got[0] != "pending" || got[1] != "processing" {
			t.Errorf("status = %v", got)
		}
		_ = json.NewEncoder(w).Encode(api.JobListResponse{})
	})
	if _, err := c.ListJobs(context.Background(), "alice", queue.StatusPending, queue.StatusProcessing); err != nil {
		t.Fatalf("list jobs: %v", err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "project revised, reload before writing"})
	})
	_, err := c.SaveTimeline(context.Background(), "p1", api.SaveTimelineRequest{})
	if err == nil || !strings.Contains(err.Error(), "reload before writing") {
		t.Fatalf("expected surfaced message, got %v", err)
	}
}

func TestIsUnavailable(t *testing.T) {
	c, err := New("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	_, err = c.Status(context.Background())
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCancelJobPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs/j1/cancel" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.JobView{ID: "j1", Status: "cancelled"}})
	})
	resp, err := c.CancelJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Job.Status != "cancelled" {
		t.Fatalf("status = %q", resp.Job.Status)
	}
}
