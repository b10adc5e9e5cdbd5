package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alex-user-go/travelaz/internal/search/types"
)

// Backing is an optional second-level store consulted on a memory miss.
type Backing interface {
	Get(ctx context.Context, key string) (*types.Result, bool, error)
	Set(ctx context.Context, key string, result *types.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache memoizes aggregation results with a TTL and a bounded LRU.
// Entries expire relative to Result.CreatedAt.
type Cache struct {
	entries *lru.Cache[string, *types.Result]
	ttl     time.Duration
	backing Backing
	logger  *slog.Logger
	done    chan struct{}
}

// NewCache creates a Cache. backing may be nil.
func NewCache(ttl time.Duration, capacity int, backing Backing, logger *slog.Logger) (*Cache, error) {
	entries, err := lru.New[string, *types.Result](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	c := &Cache{
		entries: entries,
		ttl:     ttl,
		backing: backing,
		logger:  logger.With("component", "cache"),
		done:    make(chan struct{}),
	}

	// Start background cleanup
	go c.cleanup(sweepInterval(ttl))

	return c, nil
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	close(c.done)
}

// Key identifies a search for one accommodation.
func Key(accommodationID string, search types.StaySearch) string {
	return fmt.Sprintf("deals:%s:%s", accommodationID, search.Key())
}

// Get returns a live entry. Expired entries are evicted and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*types.Result, bool) {
	if res, ok := c.entries.Get(key); ok {
		if c.fresh(res) {
			return res, true
		}
		c.entries.Remove(key)
	}

	if c.backing == nil {
		return nil, false
	}

	res, ok, err := c.backing.Get(ctx, key)
	if err != nil {
		c.logger.Warn("backing cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok || !c.fresh(res) {
		return nil, false
	}
	c.entries.Add(key, res)
	return res, true
}

// Put stores result under key.
func (c *Cache) Put(ctx context.Context, key string, result *types.Result) {
	c.entries.Add(key, result)

	if c.backing == nil {
		return
	}
	ttl := c.ttl - time.Since(result.CreatedAt)
	if ttl <= 0 {
		return
	}
	if err := c.backing.Set(ctx, key, result, ttl); err != nil {
		c.logger.Warn("backing cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes a specific key from the cache.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.entries.Remove(key)
	if c.backing == nil {
		return
	}
	if err := c.backing.Delete(ctx, key); err != nil {
		c.logger.Warn("backing cache delete failed", "key", key, "error", err)
	}
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) fresh(res *types.Result) bool {
	return time.Since(res.CreatedAt) < c.ttl
}

// cleanup periodically removes expired entries.
func (c *Cache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	for _, key := range c.entries.Keys() {
		if res, ok := c.entries.Peek(key); ok && !c.fresh(res) {
			c.entries.Remove(key)
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, time.Second), time.Minute)
}
