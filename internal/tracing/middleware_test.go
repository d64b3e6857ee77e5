package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusWriterCapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusTooManyRequests)
	sw.WriteHeader(http.StatusOK) // second write must not override

	if sw.status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", sw.status)
	}
}

func TestStatusWriterImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	if _, err := sw.Write([]byte("body")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sw.status != http.StatusOK {
		t.Errorf("status = %d, want 200", sw.status)
	}
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	var called bool
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-article", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("inner handler not invoked")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}
