package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeController struct {
	paused bool
}

func (f *fakeController) Pause()  { f.paused = true }
func (f *fakeController) Resume() { f.paused = false }
func (f *fakeController) Status() map[string]any {
	return map[string]any{"paused": f.paused}
}

func TestHealthIsOpen(t *testing.T) {
	router := NewRouter(&fakeController{}, "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsIsOpen(t *testing.T) {
	router := NewRouter(&fakeController{}, "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestControlRoutesRequireToken(t *testing.T) {
	ctrl := &fakeController{}
	router := NewRouter(ctrl, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pause", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if ctrl.paused {
		t.Fatal("pause executed without auth")
	}

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/pause", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("good token: status = %d", rec.Code)
	}
	if !ctrl.paused {
		t.Fatal("pause did not reach the controller")
	}
}

func TestResumeAndStatus(t *testing.T) {
	ctrl := &fakeController{paused: true}
	router := NewRouter(ctrl, "secret")

	req := httptest.NewRequest(http.MethodPost, "/resume", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("resume: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if paused, _ := body["paused"].(bool); paused {
		t.Fatal("status should report resumed")
	}
}

func TestEmptyTokenDisablesControls(t *testing.T) {
	router := NewRouter(&fakeController{}, "")
	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
