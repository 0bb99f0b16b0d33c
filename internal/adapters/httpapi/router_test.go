package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/careline/telecall/internal/adapters/signalws"
	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/consult"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/relay"
)

func newTestRouter(t *testing.T) (http.Handler, *consult.Store) {
	t.Helper()
	store, err := consult.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Mode: "release", Secret: "test-secret"}
	ws := signalws.NewController(relay.NewService(relay.NewRegistry()), cfg)
	return SetupRouter(context.Background(), cfg, store, ws), store
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", w.Code)
	}
}

func TestCreateConsultation(t *testing.T) {
	r, store := newTestRouter(t)

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"doctorId":"doc-1","patientId":"pat-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/consultations", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/consultations = %d, body %s", w.Code, w.Body)
	}
	var cons domain.Consultation
	if err := json.Unmarshal(w.Body.Bytes(), &cons); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cons.ID == "" || cons.Status != domain.StatusPending {
		t.Fatalf("response = %+v, want pending with id", cons)
	}

	// The id is the room id; it must resolve in the store.
	if _, err := store.Get(context.Background(), cons.ID); err != nil {
		t.Fatalf("stored consultation missing: %v", err)
	}
}

func TestCreateConsultationRejectsMissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/consultations", strings.NewReader(`{"doctorId":"doc-1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST without patientId = %d, want 400", w.Code)
	}
}

func TestGetConsultationNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/consultations/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET missing = %d, want 404", w.Code)
	}
}

func TestPatchConsultationStatus(t *testing.T) {
	r, store := newTestRouter(t)
	cons, err := store.Create(context.Background(), "doc-1", "pat-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/consultations/"+cons.ID, strings.NewReader(`{"status":"active"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH = %d, body %s", w.Code, w.Body)
	}

	got, err := store.Get(context.Background(), cons.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("Status = %q, want active", got.Status)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/consultations/"+cons.ID, strings.NewReader(`{"status":"archived"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("PATCH bogus status = %d, want 400", w.Code)
	}
}
