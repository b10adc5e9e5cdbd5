package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/alex-user-go/travelaz/internal/obs"
)

var (
	// ErrRateFetchFailed is returned when a live exchange-rate refresh fails.
	ErrRateFetchFailed = errors.New("exchange rate fetch failed")
	// ErrConversionUnavailable marks a conversion for which no rate is known.
	ErrConversionUnavailable = errors.New("conversion unavailable")
)

// fallbackRates are approximate USD-based rates used when no live table is available.
var fallbackRates = map[string]float64{
	"USD": 1,
	"ZAR": 18.5,
	"GBP": 0.79,
	"EUR": 0.93,
	"AUD": 1.52,
	"THB": 33.5,
}

var symbols = map[string]string{
	"USD": "$",
	"ZAR": "R",
	"GBP": "£",
	"EUR": "€",
	"AUD": "A$",
	"THB": "฿",
}

// RateTable maps currency codes to their rate relative to Base.
// A table is never mutated after it is published.
type RateTable struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
	Fallback  bool               `json:"fallback"`
}

// FallbackTable returns the embedded static table.
func FallbackTable() *RateTable {
	return &RateTable{
		Base:     "USD",
		Rates:    maps.Clone(fallbackRates),
		Fallback: true,
	}
}

// Fetcher retrieves a live rate table for a base currency.
type Fetcher interface {
	Fetch(ctx context.Context, base string) (map[string]float64, error)
}

// Service holds the process-wide exchange-rate table.
type Service struct {
	base    string
	fetcher Fetcher
	table   atomic.Pointer[RateTable]
	group   singleflight.Group
	metrics *obs.Metrics
	logger  *slog.Logger
}

// NewService creates a Service. No fetch happens until Rates or Refresh is called.
func NewService(base string, fetcher Fetcher, metrics *obs.Metrics, logger *slog.Logger) *Service {
	if base == "" {
		base = "USD"
	}
	return &Service{
		base:    base,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger.With("component", "currency"),
	}
}

// Rates returns the current table, fetching it on first use. It always
// returns a usable table.
func (s *Service) Rates(ctx context.Context) *RateTable {
	if t := s.table.Load(); t != nil {
		return t
	}
	t, _ := s.Refresh(ctx)
	return t
}

// Refresh fetches a new table and publishes it whole. Concurrent callers share
// one fetch. On failure the previous table is kept, or the fallback table is
// installed if none exists, and the error wraps ErrRateFetchFailed.
func (s *Service) Refresh(ctx context.Context) (*RateTable, error) {
	v, err, _ := s.group.Do("rates", func() (any, error) {
		rates, err := s.fetcher.Fetch(ctx, s.base)
		if err != nil {
			return nil, err
		}
		if len(rates) == 0 {
			return nil, errors.New("empty rate table")
		}

		t := &RateTable{
			Base:      s.base,
			Rates:     maps.Clone(rates),
			FetchedAt: time.Now().UTC(),
		}
		t.Rates[s.base] = 1
		s.table.Store(t)
		return t, nil
	})
	if err != nil {
		s.metrics.IncRateRefreshFailures()
		s.table.CompareAndSwap(nil, FallbackTable())
		current := s.table.Load()
		s.logger.Warn("exchange rate refresh failed",
			"error", err,
			"fallback", current.Fallback)
		return current, fmt.Errorf("%w: %w", ErrRateFetchFailed, err)
	}

	t := v.(*RateTable)
	s.logger.Debug("exchange rates refreshed", "base", t.Base, "currencies", len(t.Rates))
	return t, nil
}

// Run refreshes the table every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Convert converts amount from one currency to another through the table's
// base, rounded to two decimals. An identical pair returns the rounded amount.
// If either currency is unknown, or amount is not finite, the amount is
// returned unchanged.
func (s *Service) Convert(amount float64, from, to string) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		s.logger.Warn("currency conversion skipped",
			"error", "amount is not finite",
			"from", from,
			"to", to)
		return amount
	}
	if from == to {
		return round2(decimal.NewFromFloat(amount))
	}

	t := s.table.Load()
	if t == nil {
		t = FallbackTable()
	}

	rateFrom, okFrom := t.Rates[from]
	rateTo, okTo := t.Rates[to]
	if !okFrom || !okTo || rateFrom <= 0 {
		s.logger.Warn("currency conversion skipped",
			"error", ErrConversionUnavailable,
			"from", from,
			"to", to)
		return amount
	}

	v := decimal.NewFromFloat(amount).
		Div(decimal.NewFromFloat(rateFrom)).
		Mul(decimal.NewFromFloat(rateTo))
	return round2(v)
}

// Symbol returns the display glyph for code, or code itself when unknown.
func (s *Service) Symbol(code string) string {
	return Symbol(code)
}

// Symbol returns the display glyph for code, or code itself when unknown.
func Symbol(code string) string {
	if sym, ok := symbols[code]; ok {
		return sym
	}
	return code
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
