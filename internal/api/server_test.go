package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/commonground/progression/internal/infra/observability"
	"github.com/commonground/progression/internal/infra/sqlite"
)

// ─── Ops API Tests ──────────────────────────────────────────────────────────

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("disk gone") }

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewServer(db, nil)
	s.EnableMetrics()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth_OK(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestHealth_StoreDown(t *testing.T) {
	s := NewServer(downStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "database unavailable") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestVersion(t *testing.T) {
	s := NewServer(downStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), Version) {
		t.Errorf("body = %s, want version %s", w.Body.String(), Version)
	}
}

func TestMetrics_Exposed(t *testing.T) {
	ts := setupServer(t)
	observability.PointsDebited.Add(0)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "progression_ledger_points_debited_total") {
		t.Error("metrics output missing progression_ledger_points_debited_total")
	}
}

func TestMetrics_DisabledByDefault(t *testing.T) {
	s := NewServer(downStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(downStore{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/engine/credit", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
