package obs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/api/v1/students":        "/api/v1/students",
		"/api/v1/students?page=2": "/api/v1/students",
		"/api/v1/students/create": "/api/v1/students/create",
		"/api/v1/students/01HZX3V5W8Q2ZK9J7T3N4M5P6R":         "/api/v1/students/:id",
		"/api/v1/institutes/01HZX3V5W8Q2ZK9J7T3N4M5P6R/users": "/api/v1/institutes/:id/users",
		"/school/students": "/school/students",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestStatusWriterKeepsFirstCode(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := NewStatusWriter(rr)
	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.Status() != http.StatusCreated {
		t.Fatalf("expected 201, got %d", sw.Status())
	}
}

func TestStatusWriterDefaultsToOK(t *testing.T) {
	sw := NewStatusWriter(httptest.NewRecorder())
	_, _ = sw.Write([]byte("ok"))
	if sw.Status() != http.StatusOK {
		t.Fatalf("expected 200, got %d", sw.Status())
	}
}

func seriesCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestInstrumentLabelsByRoute(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), func(*http.Request) string { return "" })

	before := seriesCount(httpRequestsTotal)
	for i := 0; i < 200; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, fmt.Sprintf("/scan-%d", i), nil))
	}
	after := seriesCount(httpRequestsTotal)
	if after-before > 1 {
		t.Fatalf("expected at most one new series, got %d", after-before)
	}
}
