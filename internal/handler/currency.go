package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/alex-user-go/travelaz/internal/currency"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// ConvertResponse is the body of a conversion.
type ConvertResponse struct {
	Amount    float64 `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Converted float64 `json:"converted"`
	Symbol    string  `json:"symbol"`
	Formatted string  `json:"formatted"`
}

// Rates handles GET /api/currency/rates.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currency.Rates(r.Context()))
}

// Convert handles GET /api/currency/convert?amount=&from=&to=.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeError(w, http.StatusBadRequest, "BadRequest", "amount must be a number")
		return
	}
	from := types.NormalizeCurrency(q.Get("from"))
	to := types.NormalizeCurrency(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "from and to are required")
		return
	}

	table := h.currency.Rates(r.Context())
	for _, code := range []string{from, to} {
		if _, ok := table.Rates[code]; !ok && from != to {
			h.fail(w, r, fmt.Errorf("%w: no rate for %s", currency.ErrConversionUnavailable, code))
			return
		}
	}

	converted := h.currency.Convert(amount, from, to)
	symbol := h.currency.Symbol(to)
	writeJSON(w, http.StatusOK, ConvertResponse{
		Amount:    amount,
		From:      from,
		To:        to,
		Converted: converted,
		Symbol:    symbol,
		Formatted: symbol + strconv.FormatFloat(converted, 'f', 2, 64),
	})
}
