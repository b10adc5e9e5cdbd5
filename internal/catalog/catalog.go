// Package catalog reads accommodation listings from the external store.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no accommodation has the requested id.
var ErrNotFound = errors.New("accommodation not found")

// Catalog source keys for provider booking URLs.
const (
	SourceBooking = "booking"
	SourceTrip    = "trip"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Accommodation is a catalog listing.
type Accommodation struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	City        string            `json:"city"`
	Area        string            `json:"area"`
	Price       float64           `json:"price"`
	Rating      float64           `json:"rating"`
	ImageURL    string            `json:"image_url"`
	Description string            `json:"description"`
	ViewCount   int64             `json:"view_count"`
	SourceURLs  map[string]string `json:"source_urls"`
}

// SortBy selects the listing order.
type SortBy string

const (
	SortPopularity SortBy = "view_count"
	SortPrice      SortBy = "price"
	SortRating     SortBy = "rating"
)

// ParseSortBy maps a query value to a SortBy, defaulting to popularity.
func ParseSortBy(s string) (SortBy, bool) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortPopularity, "popularity":
		return SortPopularity, true
	case SortPrice:
		return SortPrice, true
	case SortRating:
		return SortRating, true
	}
	return "", false
}

// Query selects accommodations by city.
type Query struct {
	City   string
	SortBy SortBy
	Limit  int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return min(q.Limit, maxLimit)
}

// Store is the accommodation catalog.
type Store interface {
	// FindByCity matches city case-insensitively as a substring.
	FindByCity(ctx context.Context, q Query) ([]Accommodation, error)
	Get(ctx context.Context, id string) (Accommodation, error)
	// IncrementViews bumps the view counter and returns the new value.
	IncrementViews(ctx context.Context, id string) (int64, error)
}

// record is the row/document shape shared by the seed file and Mongo.
type record struct {
	ID          any     `json:"id" bson:"_id"`
	Name        string  `json:"name" bson:"name"`
	City        string  `json:"city" bson:"city"`
	Area        string  `json:"area" bson:"area"`
	Price       float64 `json:"price" bson:"price"`
	Rating      float64 `json:"rating" bson:"rating"`
	ImageURL    string  `json:"image_url" bson:"image_url"`
	Description string  `json:"description" bson:"description"`
	ViewCount   int64   `json:"view_count" bson:"view_count"`
	BookingURL  string  `json:"booking_dot_com_affiliate_url" bson:"booking_dot_com_affiliate_url"`
	TripURL     string  `json:"trip_dot_com_affiliate_url" bson:"trip_dot_com_affiliate_url"`
}

func (r record) accommodation() Accommodation {
	return Accommodation{
		ID:          idString(r.ID),
		Name:        r.Name,
		City:        r.City,
		Area:        r.Area,
		Price:       r.Price,
		Rating:      r.Rating,
		ImageURL:    r.ImageURL,
		Description: r.Description,
		ViewCount:   r.ViewCount,
		SourceURLs:  sourceURLs(r.BookingURL, r.TripURL),
	}
}

// idString renders numeric, string and ObjectID ids alike.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case interface{ Hex() string }:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

func sourceURLs(booking, trip string) map[string]string {
	urls := make(map[string]string, 2)
	if s := strings.TrimSpace(booking); s != "" {
		urls[SourceBooking] = s
	}
	if s := strings.TrimSpace(trip); s != "" {
		urls[SourceTrip] = s
	}
	return urls
}

func sortAccommodations(list []Accommodation, by SortBy) {
	slices.SortStableFunc(list, func(a, b Accommodation) int {
		switch by {
		case SortPrice:
			return cmp.Compare(a.Price, b.Price)
		case SortRating:
			return cmp.Compare(b.Rating, a.Rating)
		default:
			return cmp.Compare(b.ViewCount, a.ViewCount)
		}
	})
}
