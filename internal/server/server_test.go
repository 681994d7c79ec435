package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mediastore/mediastore/internal/config"
	"github.com/mediastore/mediastore/internal/events"
	"github.com/mediastore/mediastore/internal/handlers"
	"github.com/mediastore/mediastore/internal/jobs"
	"github.com/mediastore/mediastore/internal/reconcile"
	"github.com/mediastore/mediastore/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}

	store := storage.NewMemoryStore()
	engine := &reconcile.Engine{
		Store:           store,
		Bucket:          "media",
		Publisher:       events.NopPublisher{},
		CheckDuplicates: true,
	}
	gateway := handlers.NewGateway(engine, store, "media", jobs.NopTracker{})
	return New(cfg, gateway, store, nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body HealthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestHealthHead(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("HEAD", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSpecDocumentServed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/spec/mediastore-api.json", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "MediaStore API") {
		t.Errorf("spec document missing API title")
	}
}

func TestCommonHeadersApplied(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}
	if got := rec.Header().Get("Server"); got != "MediaStore" {
		t.Errorf("Server header = %q, want MediaStore", got)
	}
}

func TestDownloadRouteWiredThroughChain(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/download/missing-key.png", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing-key.png") {
		t.Errorf("404 body should name the key, got %q", rec.Body.String())
	}
}
