package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alex-user-go/travelaz/internal/middleware"
	"github.com/alex-user-go/travelaz/internal/obs"
)

func TestLogging_RequestID(t *testing.T) {
	existing := uuid.NewString()

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "propagates a valid id", header: existing, wantSame: true},
		{name: "assigns when missing", header: ""},
		{name: "replaces a malformed id", header: "not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := middleware.Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seen = middleware.RequestID(r.Context())
				}),
			)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.header != "" {
				req.Header.Set(middleware.RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(middleware.RequestIDHeader)
			if got != seen {
				t.Errorf("header id %q differs from context id %q", got, seen)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("expected a uuid, got %q", got)
			}
			if tt.wantSame && got != tt.header {
				t.Errorf("expected id %q to be kept, got %q", tt.header, got)
			}
		})
	}
}

func TestLogging_LogsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON line: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "request completed" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v, want 418", rec["status"])
	}
	if rec["bytes"] != float64(len("short and stout")) {
		t.Errorf("bytes = %v", rec["bytes"])
	}
	if rec["component"] != "http" || rec["path"] != "/teapot" {
		t.Errorf("unexpected attrs: %v", rec)
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	m := obs.NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(middleware.Metrics(m))
	r.Get("/api/accommodations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/accommodations/"+id, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	want := `http_requests_total{method="GET",route="/api/accommodations/{id}",status="404"} 3`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("expected %q in:\n%s", want, rec.Body.String())
	}
}
