package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/travelaz/internal/middleware"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// SearchDeals handles GET /api/accommodations/{id}/deals. Missing stay
// parameters fall back to one night from today for two adults in one room.
func (h *Handler) SearchDeals(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncRequests("deals")
	requestID := middleware.RequestID(r.Context())

	acc, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := ParseStaySearch(r, types.DefaultStaySearch(h.now(), h.defaultCurrency))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, hit, err := h.search.Search(r.Context(), acc, s)
	if err != nil {
		h.logger.Debug("deal search failed",
			"request_id", requestID,
			"accommodation_id", acc.ID,
			"error", err)
		h.fail(w, r, err)
		return
	}

	view := newResultView(res)
	view.Stats.Cache = "miss"
	if hit {
		view.Stats.Cache = "hit"
	}
	writeJSON(w, http.StatusOK, view)
}
