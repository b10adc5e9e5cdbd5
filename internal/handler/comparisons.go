package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/travelaz/internal/comparison"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// maxWait bounds GET ?wait=true beyond the request's own deadline.
const maxWait = 60 * time.Second

type openRequest struct {
	AccommodationID string `json:"accommodationId"`
	Currency        string `json:"currency"`
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

// OpenComparison handles POST /api/comparisons.
func (h *Handler) OpenComparison(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncRequests("comparison")

	var req openRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.AccommodationID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "accommodationId is required")
		return
	}
	cur := types.NormalizeCurrency(req.Currency)
	if cur == "" {
		cur = h.defaultCurrency
	}

	ctrl, err := h.comparisons.Open(r.Context(), req.AccommodationID, cur)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/comparisons/"+ctrl.ID())
	writeJSON(w, http.StatusCreated, h.newSnapshotView(ctrl.Snapshot()))
}

// GetComparison handles GET /api/comparisons/{id}. With wait=true it blocks
// until the current search settles.
func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}

	snap := ctrl.Snapshot()
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), maxWait)
		defer cancel()
		// A timed out wait still reports the state it saw.
		snap, _ = ctrl.Wait(ctx)
	}
	writeJSON(w, http.StatusOK, h.newSnapshotView(snap))
}

// UpdateComparisonSearch handles PUT /api/comparisons/{id}/search. A rejected
// search leaves the session in Error and is reported with its code.
func (h *Handler) UpdateComparisonSearch(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := req.apply(ctrl.Snapshot().Search)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := ctrl.UpdateSearch(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newSnapshotView(ctrl.Snapshot()))
}

// SetComparisonCurrency handles PUT /api/comparisons/{id}/currency.
func (h *Handler) SetComparisonCurrency(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}

	var req currencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := ctrl.SetCurrency(req.Currency); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newSnapshotView(ctrl.Snapshot()))
}

// RetryComparison handles POST /api/comparisons/{id}/retry.
func (h *Handler) RetryComparison(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := ctrl.Retry(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.newSnapshotView(ctrl.Snapshot()))
}

// CloseComparison handles DELETE /api/comparisons/{id}.
func (h *Handler) CloseComparison(w http.ResponseWriter, r *http.Request) {
	if err := h.comparisons.Close(chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*comparison.Controller, bool) {
	ctrl, err := h.comparisons.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return ctrl, true
}
