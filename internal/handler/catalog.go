package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/middleware"
)

// ListResponse is the body of a catalog query.
type ListResponse struct {
	City           string                  `json:"city"`
	SortBy         catalog.SortBy          `json:"sortBy"`
	Count          int                     `json:"count"`
	Accommodations []catalog.Accommodation `json:"accommodations"`
}

// ListAccommodations handles GET /api/accommodations.
func (h *Handler) ListAccommodations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sortBy, ok := catalog.ParseSortBy(q.Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, "InvalidQuery", fmt.Sprintf("unknown sort %q", q.Get("sort")))
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "InvalidQuery", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	city := strings.TrimSpace(q.Get("city"))
	list, err := h.catalog.FindByCity(r.Context(), catalog.Query{City: city, SortBy: sortBy, Limit: limit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []catalog.Accommodation{}
	}
	h.images.Apply(list)

	writeJSON(w, http.StatusOK, ListResponse{
		City:           city,
		SortBy:         sortBy,
		Count:          len(list),
		Accommodations: list,
	})
}

// GetAccommodation handles GET /api/accommodations/{id}.
func (h *Handler) GetAccommodation(w http.ResponseWriter, r *http.Request) {
	acc, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	acc.ImageURL = h.images.Resolve(acc.ImageURL)
	writeJSON(w, http.StatusOK, acc)
}

// RecordView handles POST /api/accommodations/{id}/views. The increment runs
// in the background and the reply does not wait for it.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	requestID := middleware.RequestID(r.Context())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := h.catalog.IncrementViews(ctx, id); err != nil {
			h.logger.Warn("failed to record view",
				"request_id", requestID,
				"accommodation_id", id,
				"error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}
