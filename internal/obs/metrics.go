package obs

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests            *prometheus.CounterVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	providerOutcomes    *prometheus.CounterVec
	providerLatency     *prometheus.HistogramVec
	rateLimitDrops      prometheus.Counter
	rateRefreshFailures prometheus.Counter
	sessionsOpen        prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelaz_requests_total",
			Help: "Deal searches received, by entry point",
		}, []string{"entry"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelaz_cache_hits_total",
			Help: "Result cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelaz_cache_misses_total",
			Help: "Result cache misses",
		}),
		providerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelaz_provider_outcomes_total",
			Help: "Deal source outcomes by provider and kind",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "travelaz_provider_latency_seconds",
			Help:    "Latency of deal source requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		rateLimitDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelaz_ratelimit_drops_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		rateRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelaz_exchange_rate_refresh_failures_total",
			Help: "Failed exchange-rate refreshes",
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "travelaz_comparison_sessions_open",
			Help: "Comparison sessions currently open",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.requests,
		m.cacheHits,
		m.cacheMisses,
		m.providerOutcomes,
		m.providerLatency,
		m.rateLimitDrops,
		m.rateRefreshFailures,
		m.sessionsOpen,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// IncRequests counts a deal search arriving through entry.
func (m *Metrics) IncRequests(entry string) { m.requests.WithLabelValues(entry).Inc() }

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() { m.cacheHits.Inc() }

// IncCacheMisses increments the cache misses counter.
func (m *Metrics) IncCacheMisses() { m.cacheMisses.Inc() }

// ObserveProvider records one deal source call.
func (m *Metrics) ObserveProvider(provider, outcome string, seconds float64) {
	m.providerOutcomes.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) IncRateLimitDrops() { m.rateLimitDrops.Inc() }

func (m *Metrics) IncRateRefreshFailures() { m.rateRefreshFailures.Inc() }

func (m *Metrics) SessionOpened() { m.sessionsOpen.Inc() }

func (m *Metrics) SessionClosed() { m.sessionsOpen.Dec() }

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}
