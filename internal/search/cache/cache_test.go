package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alex-user-go/travelaz/internal/search/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeBacking struct {
	mu      sync.Mutex
	data    map[string]*types.Result
	ttls    map[string]time.Duration
	getErr  error
	deletes int
}

func newFakeBacking() *fakeBacking {
	return &fakeBacking{data: map[string]*types.Result{}, ttls: map[string]time.Duration{}}
}

func (f *fakeBacking) Get(_ context.Context, key string) (*types.Result, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	r, ok := f.data[key]
	return r, ok, nil
}

func (f *fakeBacking) Set(_ context.Context, key string, r *types.Result, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = r
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBacking) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	f.deletes++
	return nil
}

func newTestCache(t *testing.T, ttl time.Duration, capacity int, b Backing) *Cache {
	t.Helper()
	c, err := NewCache(ttl, capacity, b, discard)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestKey(t *testing.T) {
	in, _ := types.ParseDay("2024-01-15")
	out, _ := types.ParseDay("2024-01-18")
	s := types.StaySearch{CheckIn: in, CheckOut: out, Adults: 2, Children: 1, ChildAges: []int{6}, Rooms: 1, Currency: "ZAR"}

	tests := []struct {
		name   string
		id     string
		search types.StaySearch
		want   string
	}{
		{
			name:   "basic key",
			id:     "42",
			search: s,
			want:   "deals:42:2024-01-15:2024-01-18:a2:c1:[6]:r1:ZAR",
		},
		{
			name:   "empty id",
			id:     "",
			search: s,
			want:   "deals::2024-01-15:2024-01-18:a2:c1:[6]:r1:ZAR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.id, tt.search); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCache_GetPut(t *testing.T) {
	c := newTestCache(t, time.Minute, 10, nil)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	want := &types.Result{ProvidersTotal: 2, CreatedAt: time.Now()}
	c.Put(ctx, "k", want)

	got, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got != want {
		t.Errorf("expected stored result, got %+v", got)
	}
}

func TestCache_ExpiredEntryIsMissAndEvicted(t *testing.T) {
	c := newTestCache(t, 50*time.Millisecond, 10, nil)
	ctx := context.Background()

	c.Put(ctx, "k", &types.Result{CreatedAt: time.Now().Add(-time.Second)})
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry evicted on lookup, len %d", c.Len())
	}
}

func TestCache_Sweep(t *testing.T) {
	c := newTestCache(t, time.Minute, 10, nil)
	ctx := context.Background()

	c.Put(ctx, "old", &types.Result{CreatedAt: time.Now().Add(-2 * time.Minute)})
	c.Put(ctx, "new", &types.Result{CreatedAt: time.Now()})
	c.sweep()

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after sweep, got %d", c.Len())
	}
	if _, ok := c.Get(ctx, "new"); !ok {
		t.Error("expected fresh entry to survive sweep")
	}
}

func TestCache_LRUBound(t *testing.T) {
	c := newTestCache(t, time.Minute, 2, nil)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "a", &types.Result{CreatedAt: now})
	c.Put(ctx, "b", &types.Result{CreatedAt: now})
	c.Get(ctx, "a")
	c.Put(ctx, "c", &types.Result{CreatedAt: now})

	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("expected recently used entry to remain")
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}
}

func TestCache_Backing(t *testing.T) {
	b := newFakeBacking()
	ctx := context.Background()

	c1 := newTestCache(t, time.Minute, 10, b)
	c1.Put(ctx, "k", &types.Result{ProvidersTotal: 3, CreatedAt: time.Now()})

	if ttl := b.ttls["k"]; ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected remaining ttl within (0, 1m], got %v", ttl)
	}

	// A second cache instance shares only the backing store.
	c2 := newTestCache(t, time.Minute, 10, b)
	got, ok := c2.Get(ctx, "k")
	if !ok || got.ProvidersTotal != 3 {
		t.Fatalf("expected hit from backing store, got %v %v", got, ok)
	}
	if c2.Len() != 1 {
		t.Errorf("expected backing hit promoted to memory")
	}

	c2.Invalidate(ctx, "k")
	if _, ok := c2.Get(ctx, "k"); ok {
		t.Error("expected miss after invalidate")
	}
	if b.deletes != 1 {
		t.Errorf("expected backing delete, got %d", b.deletes)
	}
}

func TestCache_BackingErrorIsMiss(t *testing.T) {
	b := newFakeBacking()
	b.getErr = errors.New("connection refused")
	c := newTestCache(t, time.Minute, 10, b)

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected miss on backing error")
	}
}

func TestCache_BackingStaleIgnored(t *testing.T) {
	b := newFakeBacking()
	b.data["k"] = &types.Result{CreatedAt: time.Now().Add(-time.Hour)}
	c := newTestCache(t, time.Minute, 10, b)

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected stale backing entry to miss")
	}
}
