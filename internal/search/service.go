package search

import (
	"context"
	"log/slog"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/search/cache"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// Service answers deal searches through the result cache.
type Service struct {
	aggregator *Aggregator
	cache      *cache.Cache
	metrics    *obs.Metrics
	logger     *slog.Logger
}

// NewService creates a new Service.
func NewService(aggregator *Aggregator, resultCache *cache.Cache, metrics *obs.Metrics, logger *slog.Logger) *Service {
	return &Service{
		aggregator: aggregator,
		cache:      resultCache,
		metrics:    metrics,
		logger:     logger.With("component", "search"),
	}
}

// Lookup validates search and returns a cached result if one is live.
// It never reaches the deal sources.
func (s *Service) Lookup(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, bool, error) {
	if err := search.Validate(); err != nil {
		return nil, false, err
	}
	res, ok := s.cache.Get(ctx, cache.Key(acc.ID, search))
	return res, ok, nil
}

// Search returns the cached result for (acc, search) or aggregates a fresh
// one. The second return value reports a cache hit. Results of a canceled
// search, or of a search in which every source failed, are not cached.
func (s *Service) Search(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, bool, error) {
	if err := search.Validate(); err != nil {
		return nil, false, err
	}

	key := cache.Key(acc.ID, search)
	if res, ok := s.cache.Get(ctx, key); ok {
		s.metrics.IncCacheHits()
		return res, true, nil
	}
	s.metrics.IncCacheMisses()

	res, err := s.aggregator.Aggregate(ctx, acc, search)
	if err != nil {
		return nil, false, err
	}

	switch {
	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	case res.AllFailed():
		s.logger.Info("not caching result with no reachable source",
			"accommodation_id", acc.ID,
			"providers_failed", res.ProvidersFailed)
	default:
		s.cache.Put(ctx, key, res)
	}
	return res, false, nil
}

// Refresh drops any cached result for (acc, search) and aggregates again.
func (s *Service) Refresh(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, error) {
	if err := search.Validate(); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.Key(acc.ID, search))
	res, _, err := s.Search(ctx, acc, search)
	return res, err
}
