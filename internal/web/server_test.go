package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/database"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewServer(db, 0, log.New(io.Discard), "test")
}

func TestHandleVersion(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()

	s.handleVersion(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp VersionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != "test" {
		t.Errorf("expected version %q, got %q", "test", resp.Version)
	}
}

func TestHandleStatsEmptyDatabase(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()

	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalRows != 0 {
		t.Errorf("expected 0 rows, got %d", resp.TotalRows)
	}
}

func TestHandleAppsWithoutDatabaseDisabled(t *testing.T) {
	s := NewServer(nil, 0, log.New(io.Discard), "test")
	req := httptest.NewRequest(http.MethodGet, "/api/apps", nil)
	rec := httptest.NewRecorder()

	s.handleApps(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when persistence is disabled, got %d", rec.Code)
	}
}

func TestHubPublishEventWithNoClientsIsANoop(t *testing.T) {
	h := NewHub(log.New(io.Discard))
	h.PublishEvent(map[string]string{"hello": "world"})
	if h.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", h.ClientCount())
	}
}
