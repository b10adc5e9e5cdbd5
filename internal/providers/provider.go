package providers

import (
	"context"
	"errors"

	"github.com/alex-user-go/travelaz/internal/search/types"
)

// ErrSourceUnavailable wraps every hard failure of a deal source.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source identifies one external booking site and the accommodation's page on it.
type Source struct {
	Key      string // catalog key, e.g. "booking"
	Name     string // display name, e.g. "Booking.com"
	HotelURL string
}

// Kind classifies an Outcome.
type Kind int

const (
	KindFailure Kind = iota
	KindSuccess
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnavailable:
		return "unavailable"
	default:
		return "failure"
	}
}

// Quote is the raw price data of a successful source response.
type Quote struct {
	Price        float64
	Taxes        float64
	Currency     string
	Availability types.Availability
	RoomType     string
	DeepLink     string
}

// Outcome is the result of one deal source call.
type Outcome struct {
	Kind         Kind
	Quote        Quote
	Alternatives []types.AlternativeDate
	// Reason is the user-facing message for Unavailable and Failure.
	Reason string
	Err    error
}

// Provider fetches a price quote for one accommodation from one source.
// Implementations never retry.
type Provider interface {
	FetchDeal(ctx context.Context, src Source, search types.StaySearch, hotelName string) Outcome
}
