package comparison_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/comparison"
	"github.com/alex-user-go/travelaz/internal/currency"
	"github.com/alex-user-go/travelaz/internal/obs"
	"github.com/alex-user-go/travelaz/internal/providers"
	"github.com/alex-user-go/travelaz/internal/search"
	"github.com/alex-user-go/travelaz/internal/search/cache"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// funcProvider answers with fn and counts calls.
type funcProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, s types.StaySearch) providers.Outcome
}

func (p *funcProvider) FetchDeal(ctx context.Context, _ providers.Source, s types.StaySearch, _ string) providers.Outcome {
	p.calls.Add(1)
	return p.fn(ctx, s)
}

type offlineFetcher struct{}

func (offlineFetcher) Fetch(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("offline")
}

func quote(price, taxes float64) providers.Outcome {
	return providers.Outcome{
		Kind: providers.KindSuccess,
		Quote: providers.Quote{
			Price:        price,
			Taxes:        taxes,
			Currency:     "USD",
			Availability: types.Available,
		},
	}
}

type env struct {
	provider *funcProvider
	service  *search.Service
	cache    *cache.Cache
	conv     *currency.Service
	store    *catalog.MemoryStore
	metrics  *obs.Metrics
	acc      catalog.Accommodation
}

func newEnv(t *testing.T, fn func(ctx context.Context, s types.StaySearch) providers.Outcome) *env {
	t.Helper()

	e := &env{
		provider: &funcProvider{fn: fn},
		metrics:  obs.NewMetrics(prometheus.NewRegistry()),
		acc: catalog.Accommodation{
			ID:         "1",
			Name:       "Sea Point Hotel",
			City:       "Cape Town",
			SourceURLs: map[string]string{catalog.SourceBooking: "https://booking.example/sp"},
		},
	}
	e.store = catalog.NewMemoryStore(e.acc)
	e.conv = currency.NewService("USD", offlineFetcher{}, e.metrics, discard)
	e.conv.Rates(context.Background())

	reg := providers.NewRegistry(providers.Entry{Key: catalog.SourceBooking, Name: "Booking.com", Provider: e.provider})
	agg := search.NewAggregator(reg, e.conv, 5*time.Second, e.metrics, discard)

	c, err := cache.NewCache(time.Minute, 100, nil, discard)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(c.Close)
	e.cache = c
	e.service = search.NewService(agg, c, e.metrics, discard)
	return e
}

func (e *env) controller() *comparison.Controller {
	return comparison.NewController("s-1", e.acc, e.service, e.conv, discard)
}

func wait(t *testing.T, c *comparison.Controller) comparison.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return snap
}

func convertedPrice(t *testing.T, snap comparison.Snapshot) float64 {
	t.Helper()
	if snap.Result == nil || len(snap.Result.Deals) == 0 || snap.Result.Deals[0].ConvertedPrice == nil {
		t.Fatalf("expected a priced deal, got %+v", snap.Result)
	}
	return *snap.Result.Deals[0].ConvertedPrice
}

func TestController_OpenLoadsThenReady(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()

	if got := c.Snapshot().State; got != comparison.StateClosed {
		t.Fatalf("expected Closed before open, got %s", got)
	}

	c.Open(context.Background(), "USD")
	snap := wait(t, c)

	if snap.State != comparison.StateReady {
		t.Fatalf("expected Ready, got %s", snap.State)
	}
	if snap.Search.Adults != 2 || snap.Search.Rooms != 1 || snap.Search.Nights() != 1 {
		t.Errorf("expected default search, got %+v", snap.Search)
	}
	if p := convertedPrice(t, snap); p != 115 {
		t.Errorf("expected 115, got %v", p)
	}
}

func TestController_OpenCacheHitIsReadyImmediately(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })

	s := types.DefaultStaySearch(time.Now(), "USD")
	if _, _, err := e.service.Search(context.Background(), e.acc, s); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	c := e.controller()
	c.Open(context.Background(), "USD")

	if got := c.Snapshot().State; got != comparison.StateReady {
		t.Errorf("expected Ready straight from cache, got %s", got)
	}
	if n := e.provider.calls.Load(); n != 1 {
		t.Errorf("expected no extra provider call, got %d", n)
	}
}

func TestController_CloseDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome {
		// Ignores cancellation on purpose so the result arrives after close.
		<-release
		return quote(100, 15)
	})
	c := e.controller()

	c.Open(context.Background(), "USD")
	if got := c.Snapshot().State; got != comparison.StateLoading {
		t.Fatalf("expected Loading, got %s", got)
	}

	c.Close()
	close(release)
	time.Sleep(50 * time.Millisecond)

	snap := c.Snapshot()
	if snap.State != comparison.StateClosed {
		t.Errorf("expected Closed, got %s", snap.State)
	}
	if snap.Result != nil {
		t.Errorf("late result must be discarded, got %+v", snap.Result)
	}
	if e.cache.Len() != 0 {
		t.Errorf("canceled search must not be cached, got %d entries", e.cache.Len())
	}
}

func TestController_SupersededResultDropped(t *testing.T) {
	release := make(chan struct{})
	e := newEnv(t, func(_ context.Context, s types.StaySearch) providers.Outcome {
		if s.Nights() == 1 {
			<-release
			return quote(100, 0)
		}
		return quote(200, 0)
	})
	c := e.controller()
	c.Open(context.Background(), "USD")

	s := c.Snapshot().Search
	s.CheckOut = s.CheckOut.AddDate(0, 0, 2)
	if err := c.UpdateSearch(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := wait(t, c)
	if p := convertedPrice(t, snap); p != 200 {
		t.Fatalf("expected newer result 200, got %v", p)
	}

	close(release)
	time.Sleep(50 * time.Millisecond)

	if p := convertedPrice(t, c.Snapshot()); p != 200 {
		t.Errorf("stale result overwrote state: %v", p)
	}
}

func TestController_CurrencySwitchNoNetwork(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()
	c.Open(context.Background(), "USD")
	wait(t, c)

	calls := e.provider.calls.Load()

	if err := c.SetCurrency("eur"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != comparison.StateReady {
		t.Errorf("currency switch must not leave Ready, got %s", snap.State)
	}
	if p := convertedPrice(t, snap); p != 106.95 {
		t.Errorf("expected 106.95 EUR, got %v", p)
	}
	if snap.Result.Deals[0].DisplayCurrency != "EUR" {
		t.Errorf("expected display currency EUR, got %s", snap.Result.Deals[0].DisplayCurrency)
	}

	if err := c.SetCurrency("THB"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetCurrency("USD"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := convertedPrice(t, c.Snapshot()); p != 115 {
		t.Errorf("expected exact 115 after round trip from native price, got %v", p)
	}

	if n := e.provider.calls.Load(); n != calls {
		t.Errorf("expected no provider calls on currency switch, got %d more", n-calls)
	}
}

func TestController_CurrencySwitchWhileLoading(t *testing.T) {
	release := make(chan struct{})
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome {
		<-release
		return quote(100, 15)
	})
	c := e.controller()
	c.Open(context.Background(), "USD")

	if err := c.SetCurrency("EUR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)

	snap := wait(t, c)
	if p := convertedPrice(t, snap); p != 106.95 {
		t.Errorf("expected result re-derived in EUR, got %v", p)
	}
}

func TestController_InvalidDateRange(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()
	c.Open(context.Background(), "USD")
	wait(t, c)
	calls := e.provider.calls.Load()

	s := c.Snapshot().Search
	s.CheckOut = s.CheckIn.AddDate(0, 0, -1)

	if err := c.UpdateSearch(context.Background(), s); !errors.Is(err, types.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	snap := c.Snapshot()
	if snap.State != comparison.StateError {
		t.Errorf("expected Error, got %s", snap.State)
	}
	if !errors.Is(snap.Err, types.ErrInvalidDateRange) {
		t.Errorf("expected snapshot error, got %v", snap.Err)
	}
	if err := c.Retry(context.Background()); !errors.Is(err, types.ErrInvalidDateRange) {
		t.Errorf("expected retry to be rejected, got %v", err)
	}
	if n := e.provider.calls.Load(); n != calls {
		t.Errorf("invalid search must not reach providers")
	}

	s.CheckOut = s.CheckIn.AddDate(0, 0, 3)
	if err := c.UpdateSearch(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := wait(t, c).State; got != comparison.StateReady {
		t.Errorf("expected Ready after valid search, got %s", got)
	}
}

func TestController_UnchangedSearchIsNoop(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()
	c.Open(context.Background(), "USD")
	snap := wait(t, c)

	if err := c.UpdateSearch(context.Background(), snap.Search); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := c.Snapshot(); after.Generation != snap.Generation {
		t.Errorf("expected no new generation, got %d -> %d", snap.Generation, after.Generation)
	}
}

func TestController_SourceFailureIsReadyWithError(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome {
		return providers.Outcome{Kind: providers.KindFailure, Reason: "Could not get prices", Err: providers.ErrSourceUnavailable}
	})
	c := e.controller()
	c.Open(context.Background(), "USD")

	snap := wait(t, c)
	if snap.State != comparison.StateReady {
		t.Fatalf("expected Ready, got %s", snap.State)
	}
	if snap.Result.Error == "" {
		t.Error("expected error annotation on result")
	}
}

func TestController_RetryBypassesCache(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()
	c.Open(context.Background(), "USD")
	wait(t, c)

	if err := c.Retry(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wait(t, c)

	if n := e.provider.calls.Load(); n != 2 {
		t.Errorf("expected retry to reach the source, got %d calls", n)
	}
}

func TestController_ClosedRejectsOperations(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })
	c := e.controller()
	c.Open(context.Background(), "USD")
	wait(t, c)
	c.Close()

	if err := c.UpdateSearch(context.Background(), types.DefaultStaySearch(time.Now(), "USD")); !errors.Is(err, comparison.ErrClosed) {
		t.Errorf("expected ErrClosed from UpdateSearch, got %v", err)
	}
	if err := c.SetCurrency("EUR"); !errors.Is(err, comparison.ErrClosed) {
		t.Errorf("expected ErrClosed from SetCurrency, got %v", err)
	}
	if err := c.Retry(context.Background()); !errors.Is(err, comparison.ErrClosed) {
		t.Errorf("expected ErrClosed from Retry, got %v", err)
	}
}

// slowLookup holds every cache lookup until release is closed.
type slowLookup struct {
	*search.Service
	entered chan struct{}
	release chan struct{}
}

func (s *slowLookup) Lookup(ctx context.Context, acc catalog.Accommodation, st types.StaySearch) (*types.Result, bool, error) {
	close(s.entered)
	<-s.release
	return s.Service.Lookup(ctx, acc, st)
}

func TestController_SlowCacheLookupDoesNotBlockReaders(t *testing.T) {
	e := newEnv(t, func(context.Context, types.StaySearch) providers.Outcome { return quote(100, 15) })

	s := types.DefaultStaySearch(time.Now(), "USD")
	if _, _, err := e.service.Search(context.Background(), e.acc, s); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	slow := &slowLookup{Service: e.service, entered: make(chan struct{}), release: make(chan struct{})}
	c := comparison.NewController("s-1", e.acc, slow, e.conv, discard)

	opened := make(chan struct{})
	go func() {
		defer close(opened)
		c.Open(context.Background(), "USD")
	}()
	<-slow.entered

	done := make(chan comparison.State)
	go func() {
		state := c.Snapshot().State
		c.Close()
		done <- state
	}()

	select {
	case state := <-done:
		if state != comparison.StateIdle {
			t.Errorf("expected Idle during lookup, got %s", state)
		}
	case <-time.After(time.Second):
		t.Fatal("Snapshot and Close blocked behind the cache lookup")
	}

	close(slow.release)
	<-opened

	if got := c.Snapshot().State; got != comparison.StateClosed {
		t.Errorf("late cache hit must not reopen the comparison, got %s", got)
	}
	if n := e.provider.calls.Load(); n != 1 {
		t.Errorf("expected no provider call after close, got %d", n)
	}
}
