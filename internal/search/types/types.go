package types

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for stay dates.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDateRange is returned when check-out is not after check-in.
	ErrInvalidDateRange = errors.New("check-out must be after check-in")
	// ErrInvalidSearch is returned when the party composition is malformed.
	ErrInvalidSearch = errors.New("invalid stay search")
)

// Converter converts an amount between two currency codes.
type Converter interface {
	Convert(amount float64, from, to string) float64
}

// StaySearch parameterizes a price query for one accommodation.
type StaySearch struct {
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Adults    int       `json:"adults"`
	Children  int       `json:"children"`
	ChildAges []int     `json:"child_ages,omitempty"`
	Rooms     int       `json:"rooms"`
	Currency  string    `json:"currency"`
}

// DefaultStaySearch returns a one-night stay starting today for two adults in one room.
func DefaultStaySearch(now time.Time, currency string) StaySearch {
	today := Day(now)
	return StaySearch{
		CheckIn:  today,
		CheckOut: today.AddDate(0, 0, 1),
		Adults:   2,
		Rooms:    1,
		Currency: NormalizeCurrency(currency),
	}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be in YYYY-MM-DD format", s)
	}
	return t, nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the search before any network call is made.
func (s StaySearch) Validate() error {
	if !s.CheckOut.After(s.CheckIn) {
		return ErrInvalidDateRange
	}
	if s.Adults < 1 {
		return fmt.Errorf("%w: adults must be a positive integer", ErrInvalidSearch)
	}
	if s.Rooms < 1 {
		return fmt.Errorf("%w: rooms must be a positive integer", ErrInvalidSearch)
	}
	if s.Children < 0 {
		return fmt.Errorf("%w: children must not be negative", ErrInvalidSearch)
	}
	if len(s.ChildAges) != s.Children {
		return fmt.Errorf("%w: expected %d child ages, got %d", ErrInvalidSearch, s.Children, len(s.ChildAges))
	}
	for _, age := range s.ChildAges {
		if age < 0 || age > 17 {
			return fmt.Errorf("%w: child age %d out of range", ErrInvalidSearch, age)
		}
	}
	if s.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidSearch)
	}
	return nil
}

// Nights returns the number of nights between check-in and check-out.
func (s StaySearch) Nights() int {
	return int(Day(s.CheckOut).Sub(Day(s.CheckIn)).Hours() / 24)
}

// Equal reports whether every field of s and o compares equal.
func (s StaySearch) Equal(o StaySearch) bool {
	return s.CheckIn.Equal(o.CheckIn) &&
		s.CheckOut.Equal(o.CheckOut) &&
		s.Adults == o.Adults &&
		s.Children == o.Children &&
		slices.Equal(s.ChildAges, o.ChildAges) &&
		s.Rooms == o.Rooms &&
		s.Currency == o.Currency
}

// Key serializes the search into a stable string.
func (s StaySearch) Key() string {
	ages := make([]string, len(s.ChildAges))
	for i, a := range s.ChildAges {
		ages[i] = strconv.Itoa(a)
	}
	return fmt.Sprintf("%s:%s:a%d:c%d:[%s]:r%d:%s",
		s.CheckIn.Format(DateLayout),
		s.CheckOut.Format(DateLayout),
		s.Adults,
		s.Children,
		strings.Join(ages, ","),
		s.Rooms,
		s.Currency,
	)
}

// Availability is a source-reported availability status.
type Availability string

const (
	Available Availability = "Available"
	SoldOut   Availability = "SoldOut"
)

// Deal is one provider's normalized price quote for a stay.
// Price and Taxes stay in the source currency; ConvertedPrice is derived.
type Deal struct {
	Source          string       `json:"source"`
	Price           float64      `json:"price"`
	Taxes           float64      `json:"taxes"`
	Currency        string       `json:"currency"`
	Availability    Availability `json:"availability"`
	RoomType        string       `json:"room_type,omitempty"`
	DeepLink        string       `json:"deep_link,omitempty"`
	ConvertedPrice  *float64     `json:"converted_price"`
	DisplayCurrency string       `json:"display_currency"`
}

// Total returns the native price including taxes.
func (d Deal) Total() float64 {
	return d.Price + d.Taxes
}

// Priced reports whether the deal carries a bookable price. A sold-out deal
// keeps any reported price but is never priced.
func (d Deal) Priced() bool {
	return d.Price > 0 && d.Availability != SoldOut
}

// Converted returns a copy of d with its converted price derived from the native total.
func (d Deal) Converted(conv Converter, currency string) Deal {
	d.DisplayCurrency = currency
	d.ConvertedPrice = nil
	if d.Priced() {
		v := conv.Convert(d.Total(), d.Currency, currency)
		d.ConvertedPrice = &v
	}
	return d
}

// AlternativeDate is an informational suggestion from a source with no availability.
type AlternativeDate struct {
	Source          string   `json:"source"`
	Dates           string   `json:"dates"`
	CheckIn         string   `json:"check_in,omitempty"`
	CheckOut        string   `json:"check_out,omitempty"`
	Nights          int      `json:"nights"`
	Price           float64  `json:"price"`
	Taxes           float64  `json:"taxes"`
	Currency        string   `json:"currency"`
	ConvertedPrice  *float64 `json:"converted_price"`
	DisplayCurrency string   `json:"display_currency"`
}

// Converted returns a copy of a with its converted price derived from the native amount.
func (a AlternativeDate) Converted(conv Converter, currency string) AlternativeDate {
	a.DisplayCurrency = currency
	a.ConvertedPrice = nil
	if a.Price > 0 {
		v := conv.Convert(a.Price+a.Taxes, a.Currency, currency)
		a.ConvertedPrice = &v
	}
	return a
}

// ErrorKind classifies the error annotation on a Result.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindNoAvailability    ErrorKind = "NoAvailability"
	ErrorKindSourceUnavailable ErrorKind = "SourceUnavailable"
)

// Result is the merged answer of one aggregation.
type Result struct {
	AccommodationID    string            `json:"accommodation_id"`
	Search             StaySearch        `json:"search"`
	Deals              []Deal            `json:"deals"`
	AlternativeDates   []AlternativeDate `json:"alternative_dates"`
	Error              string            `json:"error,omitempty"`
	ErrorKind          ErrorKind         `json:"error_kind,omitempty"`
	ProvidersTotal     int               `json:"providers_total"`
	ProvidersSucceeded int               `json:"providers_succeeded"`
	ProvidersFailed    int               `json:"providers_failed"`
	CreatedAt          time.Time         `json:"created_at"`
}

// AllFailed reports whether every queried source returned a hard failure.
func (r *Result) AllFailed() bool {
	return r.ProvidersTotal > 0 && r.ProvidersFailed == r.ProvidersTotal
}

// Reconvert returns a copy of r with every deal and alternative re-derived in
// currency from its native amount. The receiver is not modified.
func (r *Result) Reconvert(conv Converter, currency string) *Result {
	out := *r
	out.Search.Currency = currency
	out.Search.ChildAges = slices.Clone(r.Search.ChildAges)

	out.Deals = make([]Deal, len(r.Deals))
	for i, d := range r.Deals {
		out.Deals[i] = d.Converted(conv, currency)
	}
	SortDeals(out.Deals)

	out.AlternativeDates = make([]AlternativeDate, len(r.AlternativeDates))
	for i, a := range r.AlternativeDates {
		out.AlternativeDates[i] = a.Converted(conv, currency)
	}
	return &out
}

// SortDeals orders deals ascending by converted price. Deals without a
// converted price sort after all priced deals; ties keep source order.
func SortDeals(deals []Deal) {
	slices.SortStableFunc(deals, func(a, b Deal) int {
		switch {
		case a.ConvertedPrice == nil && b.ConvertedPrice == nil:
			return 0
		case a.ConvertedPrice == nil:
			return 1
		case b.ConvertedPrice == nil:
			return -1
		}
		return cmp.Compare(*a.ConvertedPrice, *b.ConvertedPrice)
	})
}
