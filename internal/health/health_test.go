package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerNoTuners(t *testing.T) {
	h := Handler(func() Status { return Status{} })
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestHandlerOK(t *testing.T) {
	h := Handler(func() Status {
		return Status{Frontends: 2, Capabilities: "DVBS2-2", StreamsRunning: 1}
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["capabilities"] != "DVBS2-2" {
		t.Fatalf("body = %v", body)
	}
	if body["frontends"].(float64) != 2 {
		t.Fatalf("frontends = %v", body["frontends"])
	}
}
