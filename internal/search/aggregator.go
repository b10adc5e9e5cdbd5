package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/providers"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// Aggregator fans a stay search out to every source configured for an accommodation.
type Aggregator struct {
	registry  *providers.Registry
	converter types.Converter
	timeout   time.Duration
	metrics   *obs.Metrics
	logger    *slog.Logger
}

// NewAggregator creates a new Aggregator.
func NewAggregator(registry *providers.Registry, converter types.Converter, timeout time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		registry:  registry,
		converter: converter,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger.With("component", "aggregator"),
	}
}

// Aggregate queries all sources concurrently, waits for every one to settle
// and merges the outcomes. Source failures are reported on the result; the
// returned error is non-nil only for an invalid search or a canceled ctx.
func (a *Aggregator) Aggregate(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, error) {
	if err := search.Validate(); err != nil {
		return nil, err
	}

	sources := a.registry.Sources(acc.SourceURLs)
	result := &types.Result{
		AccommodationID:  acc.ID,
		Search:           search,
		Deals:            []types.Deal{},
		AlternativeDates: []types.AlternativeDate{},
		ProvidersTotal:   len(sources),
		CreatedAt:        time.Now(),
	}
	if len(sources) == 0 {
		return result, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// Indexed by source so merge order does not depend on arrival order.
	outcomes := make([]providers.Outcome, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Go(func() {
			start := time.Now()
			o := a.registry.Provider(src.Key).FetchDeal(fetchCtx, src, search, acc.Name)
			a.metrics.ObserveProvider(src.Key, o.Kind.String(), time.Since(start).Seconds())
			outcomes[i] = o
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		a.logger.Debug("aggregation canceled", "accommodation_id", acc.ID, "error", err)
		return nil, err
	}

	a.merge(result, sources, outcomes)
	return result, nil
}

func (a *Aggregator) merge(result *types.Result, sources []providers.Source, outcomes []providers.Outcome) {
	var (
		currency      = result.Search.Currency
		failureReason string
		unavailable   bool
	)

	for i, o := range outcomes {
		src := sources[i]
		switch o.Kind {
		case providers.KindSuccess:
			result.ProvidersSucceeded++
			link := o.Quote.DeepLink
			if link == "" {
				link = src.HotelURL
			}
			deal := types.Deal{
				Source:       src.Name,
				Price:        o.Quote.Price,
				Taxes:        o.Quote.Taxes,
				Currency:     o.Quote.Currency,
				Availability: o.Quote.Availability,
				RoomType:     o.Quote.RoomType,
				DeepLink:     link,
			}
			result.Deals = append(result.Deals, deal.Converted(a.converter, currency))

		case providers.KindUnavailable:
			unavailable = true
			for _, alt := range o.Alternatives {
				result.AlternativeDates = append(result.AlternativeDates, alt.Converted(a.converter, currency))
			}
			result.Error = o.Reason
			if result.Error == "" {
				result.Error = providers.NoAvailabilityMessage
			}
			result.ErrorKind = types.ErrorKindNoAvailability
			a.logger.Info("source reported no availability",
				"source", src.Name,
				"accommodation_id", result.AccommodationID,
				"alternatives", len(o.Alternatives))

		default:
			result.ProvidersFailed++
			failureReason = o.Reason
			if errors.Is(o.Err, context.Canceled) {
				a.logger.Debug("source request canceled", "source", src.Name)
			} else {
				a.logger.Warn("source request failed",
					"source", src.Name,
					"accommodation_id", result.AccommodationID,
					"error", o.Err)
			}
		}
	}

	if !unavailable && result.ProvidersSucceeded == 0 && result.ProvidersFailed > 0 {
		result.Error = failureReason
		result.ErrorKind = types.ErrorKindSourceUnavailable
	}

	types.SortDeals(result.Deals)
}
