// Package comparison holds the per-visitor price comparison state machine.
package comparison

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

var (
	// ErrClosed is returned by operations on a closed comparison.
	ErrClosed = errors.New("comparison is closed")
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("comparison session not found")
)

// State is the lifecycle state of a comparison.
type State string

const (
	StateClosed  State = "Closed"
	StateIdle    State = "Idle"
	StateLoading State = "Loading"
	StateReady   State = "Ready"
	StateError   State = "Error"
)

// Searcher is the search surface the controller drives.
type Searcher interface {
	Lookup(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, bool, error)
	Search(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, bool, error)
	Refresh(ctx context.Context, acc catalog.Accommodation, search types.StaySearch) (*types.Result, error)
}

// Snapshot is a consistent copy of a controller's visible state.
type Snapshot struct {
	ID            string
	Accommodation catalog.Accommodation
	State         State
	Search        types.StaySearch
	Result        *types.Result
	Err           error
	Generation    uint64
	UpdatedAt     time.Time
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Controller runs one comparison. Every search it starts carries a
// generation number; a result is applied only if its generation is still
// current and its context was not canceled.
type Controller struct {
	id       string
	acc      catalog.Accommodation
	searcher Searcher
	conv     types.Converter
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	search     types.StaySearch
	result     *types.Result
	err        error
	generation uint64
	cancel     context.CancelFunc
	settled    chan struct{}
	updatedAt  time.Time
	lastActive time.Time
}

// NewController creates a closed controller for acc.
func NewController(id string, acc catalog.Accommodation, searcher Searcher, conv types.Converter, logger *slog.Logger) *Controller {
	now := time.Now()
	return &Controller{
		id:         id,
		acc:        acc,
		searcher:   searcher,
		conv:       conv,
		logger:     logger.With("component", "comparison", "session_id", id, "accommodation_id", acc.ID),
		now:        time.Now,
		state:      StateClosed,
		settled:    closedCh,
		updatedAt:  now,
		lastActive: now,
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Open moves Closed to Idle with the default search and starts it. A live
// cached result moves straight to Ready. Opening an open controller is a no-op.
func (c *Controller) Open(ctx context.Context, currency string) {
	c.mu.Lock()
	c.touchLocked()
	if c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.search = types.DefaultStaySearch(c.now(), currency)
	c.setStateLocked(StateIdle)
	launch := c.startLocked(false)
	c.mu.Unlock()

	launch(ctx)
}

// UpdateSearch replaces the search. An invalid search cancels any in-flight
// request and leaves the controller in Error. An unchanged search while
// Ready or Loading is a no-op.
func (c *Controller) UpdateSearch(ctx context.Context, s types.StaySearch) error {
	c.mu.Lock()
	launch, err := c.updateSearchLocked(s)
	c.mu.Unlock()

	if launch != nil {
		launch(ctx)
	}
	return err
}

func (c *Controller) updateSearchLocked(s types.StaySearch) (func(context.Context), error) {
	c.touchLocked()
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	if s.Currency == "" {
		s.Currency = c.search.Currency
	}

	if err := s.Validate(); err != nil {
		c.abortLocked()
		c.search = s
		c.result = nil
		c.err = err
		c.setStateLocked(StateError)
		c.logger.Debug("search rejected", "error", err)
		return nil, err
	}

	if (c.state == StateReady || c.state == StateLoading) && s.Equal(c.search) {
		return nil, nil
	}

	c.search = s
	return c.startLocked(false), nil
}

// SetCurrency changes the display currency. A Ready result is re-derived
// from native prices without any network call; a result still loading is
// re-derived when it arrives.
func (c *Controller) SetCurrency(currency string) error {
	currency = types.NormalizeCurrency(currency)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.touchLocked()
	if c.state == StateClosed {
		return ErrClosed
	}
	if currency == "" {
		return types.ErrInvalidSearch
	}
	if currency == c.search.Currency {
		return nil
	}

	c.search.Currency = currency
	if c.state == StateReady && c.result != nil {
		c.result = c.result.Reconvert(c.conv, currency)
		c.updatedAt = c.now()
	}
	return nil
}

// Retry re-runs the current search, bypassing the result cache.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.touchLocked()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateLoading:
		c.mu.Unlock()
		return nil
	case StateError:
		if err := c.search.Validate(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	launch := c.startLocked(true)
	c.mu.Unlock()

	launch(ctx)
	return nil
}

// Close moves any state to Closed and cancels the in-flight search. A result
// arriving afterwards is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.abortLocked()
	c.result = nil
	c.err = nil
	c.setStateLocked(StateClosed)
}

// Snapshot returns the current visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the current search settles or ctx is done, then returns
// the visible state.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		ch := c.settled
		c.mu.Unlock()

		select {
		case <-ch:
			// A superseded generation settling leaves a newer one loading.
			if snap := c.Snapshot(); snap.State != StateLoading {
				return snap, nil
			}
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// idleSince reports the last time the controller was used.
func (c *Controller) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.search
	s.ChildAges = append([]int(nil), c.search.ChildAges...)
	return Snapshot{
		ID:            c.id,
		Accommodation: c.acc,
		State:         c.state,
		Search:        s,
		Result:        c.result,
		Err:           c.err,
		Generation:    c.generation,
		UpdatedAt:     c.updatedAt,
	}
}

// startLocked begins a new search generation and returns the function that
// launches it, to be called once c.mu is released. An Idle controller stays
// Idle while the cache is consulted so that a hit moves it straight to Ready.
func (c *Controller) startLocked(refresh bool) func(context.Context) {
	c.abortLocked()
	c.err = nil
	search := c.search

	runCtx, cancel := context.WithCancel(context.Background())
	gen := c.generation
	settled := make(chan struct{})
	c.cancel = cancel
	c.settled = settled
	if refresh || c.state != StateIdle {
		c.setStateLocked(StateLoading)
	}

	return func(ctx context.Context) {
		if !refresh && c.applyCached(ctx, gen, search, settled) {
			cancel()
			return
		}
		go c.run(runCtx, gen, search, refresh, settled)
	}
}

// applyCached serves a live cached result for generation gen. On a miss it
// reports false and the generation goes on to run. The lookup happens
// without c.mu held since the backing store may be remote.
func (c *Controller) applyCached(ctx context.Context, gen uint64, search types.StaySearch, settled chan struct{}) bool {
	res, hit, err := c.searcher.Lookup(ctx, c.acc, search)

	c.mu.Lock()
	defer c.mu.Unlock()

	stale := gen != c.generation || c.state == StateClosed
	if !stale && (err != nil || !hit) {
		c.setStateLocked(StateLoading)
		return false
	}
	defer close(settled)

	if stale {
		c.logger.Debug("discarding stale cache lookup", "generation", gen, "current", c.generation)
		return true
	}
	c.cancel = nil
	c.settled = closedCh

	if res.Search.Currency != c.search.Currency {
		res = res.Reconvert(c.conv, c.search.Currency)
	}
	c.result = res
	c.setStateLocked(StateReady)
	c.logger.Debug("comparison served from cache", "generation", gen)
	return true
}

func (c *Controller) run(ctx context.Context, gen uint64, search types.StaySearch, refresh bool, settled chan struct{}) {
	defer close(settled)

	var (
		res *types.Result
		err error
	)
	if refresh {
		res, err = c.searcher.Refresh(ctx, c.acc, search)
	} else {
		res, _, err = c.searcher.Search(ctx, c.acc, search)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state == StateClosed || ctx.Err() != nil {
		c.logger.Debug("discarding stale comparison result", "generation", gen, "current", c.generation)
		return
	}
	c.cancel = nil
	c.settled = closedCh

	if err != nil {
		c.result = nil
		c.err = err
		c.setStateLocked(StateError)
		c.logger.Warn("comparison search failed", "error", err)
		return
	}

	if res.Search.Currency != c.search.Currency {
		res = res.Reconvert(c.conv, c.search.Currency)
	}
	c.result = res
	c.setStateLocked(StateReady)
}

// abortLocked cancels the in-flight search and invalidates its generation.
func (c *Controller) abortLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.settled = closedCh
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.updatedAt = c.now()
}

func (c *Controller) touchLocked() {
	c.lastActive = c.now()
}
