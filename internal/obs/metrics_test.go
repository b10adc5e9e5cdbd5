package obs_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alex-user-go/travelaz/internal/obs"
)

func TestMetrics_Handler(t *testing.T) {
	m := obs.NewMetrics(prometheus.NewRegistry())
	m.IncRequests("deals")
	m.IncCacheHits()
	m.ObserveProvider("booking", "success", 0.12)
	m.SessionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`travelaz_requests_total{entry="deals"} 1`,
		"travelaz_cache_hits_total 1",
		`travelaz_provider_outcomes_total{outcome="success",provider="booking"} 1`,
		"travelaz_comparison_sessions_open 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	obs.HealthHandler(logger)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", rec.Body.String())
	}
}
