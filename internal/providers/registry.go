package providers

import (
	"fmt"
	"strings"
	"time"
)

// endpoints lists the scraping endpoints known by catalog key.
var endpoints = map[string]struct {
	name string
	path string
}{
	"booking": {name: "Booking.com", path: "/scrape-booking"},
	"trip":    {name: "Trip.com", path: "/scrape-trip"},
}

// Entry binds a catalog source key to a provider.
type Entry struct {
	Key      string
	Name     string
	Provider Provider
}

// Registry holds the configured providers in a fixed order.
type Registry struct {
	entries []Entry
}

// NewRegistry creates a Registry from explicit entries.
func NewRegistry(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

// NewHTTPRegistry creates HTTP providers for keys against the scraping service at baseURL.
func NewHTTPRegistry(baseURL string, keys []string, timeout time.Duration) (*Registry, error) {
	r := &Registry{}
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		ep, ok := endpoints[key]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", key)
		}
		r.entries = append(r.entries, Entry{
			Key:      key,
			Name:     ep.name,
			Provider: NewHTTPProvider(ep.name, baseURL, ep.path, timeout),
		})
	}
	return r, nil
}

// Sources returns one Source per configured provider for which urls has a
// non-empty booking URL, in registry order.
func (r *Registry) Sources(urls map[string]string) []Source {
	var out []Source
	for _, e := range r.entries {
		u := strings.TrimSpace(urls[e.Key])
		if u == "" {
			continue
		}
		out = append(out, Source{Key: e.Key, Name: e.Name, HotelURL: u})
	}
	return out
}

// Provider returns the provider registered under key, or nil.
func (r *Registry) Provider(key string) Provider {
	for _, e := range r.entries {
		if e.Key == key {
			return e.Provider
		}
	}
	return nil
}

// Len returns the number of configured providers.
func (r *Registry) Len() int {
	return len(r.entries)
}
