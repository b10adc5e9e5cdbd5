package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-process catalog, used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Accommodation
}

// NewMemoryStore creates a store holding items. Items without an id are
// numbered by position.
func NewMemoryStore(items ...Accommodation) *MemoryStore {
	s := &MemoryStore{items: make([]Accommodation, 0, len(items))}
	for i, a := range items {
		if a.ID == "" {
			a.ID = strconv.Itoa(i + 1)
		}
		a.SourceURLs = maps.Clone(a.SourceURLs)
		s.items = append(s.items, a)
	}
	return s
}

// LoadSeedFile reads a JSON array of catalog rows.
func LoadSeedFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var rows []record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	items := make([]Accommodation, len(rows))
	for i, r := range rows {
		items[i] = r.accommodation()
	}
	return NewMemoryStore(items...), nil
}

func (s *MemoryStore) FindByCity(_ context.Context, q Query) ([]Accommodation, error) {
	needle := strings.ToLower(strings.TrimSpace(q.City))

	s.mu.RLock()
	var out []Accommodation
	for _, a := range s.items {
		if strings.Contains(strings.ToLower(a.City), needle) {
			out = append(out, copyOf(a))
		}
	}
	s.mu.RUnlock()

	sortAccommodations(out, q.SortBy)
	if len(out) > q.limit() {
		out = out[:q.limit()]
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Accommodation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.items {
		if a.ID == id {
			return copyOf(a), nil
		}
	}
	return Accommodation{}, ErrNotFound
}

func (s *MemoryStore) IncrementViews(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].ViewCount++
			return s.items[i].ViewCount, nil
		}
	}
	return 0, ErrNotFound
}

func copyOf(a Accommodation) Accommodation {
	a.SourceURLs = maps.Clone(a.SourceURLs)
	return a
}
