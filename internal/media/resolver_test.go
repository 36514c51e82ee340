package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cutroom/internal/services"
)

func TestHTTPResolverResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/clip-1/url" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"url": "https://cdn.example/clip-1.mp4"}`))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, "secret", 5*time.Second)
	url, err := resolver.Resolve(context.Background(), "clip-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://cdn.example/clip-1.mp4" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestHTTPResolverNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, "", 5*time.Second)
	_, err := resolver.Resolve(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestHTTPResolverRequiresBaseURL(t *testing.T) {
	resolver := NewHTTPResolver("", "", 0)
	if _, err := resolver.Resolve(context.Background(), "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := resolver.FetchRaw(context.Background(), "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHTTPResolverFetchRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/clip-2/raw" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("raw-bytes"))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, "", 5*time.Second)
	body, err := resolver.FetchRaw(context.Background(), "clip-2")
	if err != nil {
		t.Fatalf("fetch raw: %v", err)
	}
	if string(body) != "raw-bytes" {
		t.Fatalf("unexpected body %q", body)
	}
}
