// Package handler exposes the catalog, deal search, comparison sessions and
// currency conversion over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/comparison"
	"github.com/alex-user-go/travelaz/internal/currency"
	"github.com/alex-user-go/travelaz/internal/middleware"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/search"
	"github.com/alex-user-go/travelaz/internal/search/ratelimit"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// Deps are the collaborators a Handler serves.
type Deps struct {
	Catalog         catalog.Store
	Images          *catalog.ImageResolver
	Search          *search.Service
	Comparisons     *comparison.Manager
	Currency        *currency.Service
	RateLimiter     *ratelimit.Limiter
	Metrics         *obs.Metrics
	Logger          *slog.Logger
	DefaultCurrency string
}

// Handler handles HTTP requests.
type Handler struct {
	catalog         catalog.Store
	images          *catalog.ImageResolver
	search          *search.Service
	comparisons     *comparison.Manager
	currency        *currency.Service
	rateLimiter     *ratelimit.Limiter
	metrics         *obs.Metrics
	logger          *slog.Logger
	defaultCurrency string
	now             func() time.Time
}

// New creates a new Handler.
func New(d Deps) *Handler {
	cur := types.NormalizeCurrency(d.DefaultCurrency)
	if cur == "" {
		cur = "USD"
	}
	return &Handler{
		catalog:         d.Catalog,
		images:          d.Images,
		search:          d.Search,
		comparisons:     d.Comparisons,
		currency:        d.Currency,
		rateLimiter:     d.RateLimiter,
		metrics:         d.Metrics,
		logger:          d.Logger.With("component", "handler"),
		defaultCurrency: cur,
		now:             time.Now,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/accommodations", func(r chi.Router) {
			r.Get("/", h.ListAccommodations)
			r.Get("/{id}", h.GetAccommodation)
			r.Post("/{id}/views", h.RecordView)
			r.With(h.limit).Get("/{id}/deals", h.SearchDeals)
		})

		r.Route("/comparisons", func(r chi.Router) {
			r.With(h.limit).Post("/", h.OpenComparison)
			r.Get("/{id}", h.GetComparison)
			r.Put("/{id}/search", h.UpdateComparisonSearch)
			r.Put("/{id}/currency", h.SetComparisonCurrency)
			r.Post("/{id}/retry", h.RetryComparison)
			r.Delete("/{id}", h.CloseComparison)
		})

		r.Get("/currency/rates", h.Rates)
		r.Get("/currency/convert", h.Convert)
	})
}

// limit rejects clients over the per-IP request budget.
func (h *Handler) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ExtractIP(r)
		if !h.rateLimiter.Allow(ip) {
			h.metrics.IncRateLimitDrops()
			h.logger.Warn("rate limit exceeded",
				"request_id", middleware.RequestID(r.Context()),
				"ip", ip)
			writeError(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractIP extracts the client IP from the request.
// Checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorCode maps a domain error to a stable code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, errBadBody):
		return "BadRequest", http.StatusBadRequest
	case errors.Is(err, types.ErrInvalidDateRange):
		return "InvalidDateRange", http.StatusBadRequest
	case errors.Is(err, types.ErrInvalidSearch):
		return "InvalidSearch", http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		return "NotFound", http.StatusNotFound
	case errors.Is(err, comparison.ErrSessionNotFound):
		return "SessionNotFound", http.StatusNotFound
	case errors.Is(err, comparison.ErrClosed):
		return "Closed", http.StatusConflict
	case errors.Is(err, currency.ErrConversionUnavailable):
		return "ConversionUnavailable", http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout", http.StatusGatewayTimeout
	}
	return "Internal", http.StatusInternalServerError
}

// fail writes err with its mapped status. Server-side failures are logged and
// their text is not exposed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, status := errorCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", middleware.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
		msg = http.StatusText(status)
	}
	writeError(w, status, code, msg)
}

var errBadBody = errors.New("malformed request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
