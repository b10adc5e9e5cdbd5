package handler

import (
	"time"

	"github.com/alex-user-go/travelaz/internal/catalog"
	"github.com/alex-user-go/travelaz/internal/comparison"
	"github.com/alex-user-go/travelaz/internal/currency"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

// SearchView is a StaySearch with calendar dates.
type SearchView struct {
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	Nights    int    `json:"nights"`
	Adults    int    `json:"adults"`
	Children  int    `json:"children"`
	ChildAges []int  `json:"childAges"`
	Rooms     int    `json:"rooms"`
	Currency  string `json:"currency"`
}

func newSearchView(s types.StaySearch) SearchView {
	ages := s.ChildAges
	if ages == nil {
		ages = []int{}
	}
	return SearchView{
		CheckIn:   s.CheckIn.Format(types.DateLayout),
		CheckOut:  s.CheckOut.Format(types.DateLayout),
		Nights:    s.Nights(),
		Adults:    s.Adults,
		Children:  s.Children,
		ChildAges: ages,
		Rooms:     s.Rooms,
		Currency:  s.Currency,
	}
}

// DealView is one displayable deal row.
type DealView struct {
	Source          string   `json:"source"`
	Availability    string   `json:"availability"`
	RoomType        string   `json:"roomType,omitempty"`
	DeepLink        string   `json:"deepLink,omitempty"`
	Price           float64  `json:"price"`
	Taxes           float64  `json:"taxes"`
	Currency        string   `json:"currency"`
	ConvertedPrice  *float64 `json:"convertedPrice"`
	DisplayCurrency string   `json:"displayCurrency"`
	Symbol          string   `json:"symbol"`
}

// AlternativeView is one alternative stay suggestion.
type AlternativeView struct {
	Source          string   `json:"source"`
	Dates           string   `json:"dates"`
	CheckIn         string   `json:"checkIn,omitempty"`
	CheckOut        string   `json:"checkOut,omitempty"`
	Nights          int      `json:"nights"`
	Price           float64  `json:"price"`
	Taxes           float64  `json:"taxes"`
	Currency        string   `json:"currency"`
	ConvertedPrice  *float64 `json:"convertedPrice"`
	DisplayCurrency string   `json:"displayCurrency"`
	Symbol          string   `json:"symbol"`
}

// StatsView reports how the sources answered.
type StatsView struct {
	ProvidersTotal     int    `json:"providersTotal"`
	ProvidersSucceeded int    `json:"providersSucceeded"`
	ProvidersFailed    int    `json:"providersFailed"`
	Cache              string `json:"cache,omitempty"`
}

// ResultView is an aggregated result ready for display.
type ResultView struct {
	AccommodationID  string            `json:"accommodationId"`
	Search           SearchView        `json:"search"`
	Deals            []DealView        `json:"deals"`
	AlternativeDates []AlternativeView `json:"alternativeDates"`
	Error            string            `json:"error,omitempty"`
	ErrorKind        string            `json:"errorKind,omitempty"`
	Stats            StatsView         `json:"stats"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func newResultView(res *types.Result) *ResultView {
	if res == nil {
		return nil
	}

	v := &ResultView{
		AccommodationID:  res.AccommodationID,
		Search:           newSearchView(res.Search),
		Deals:            make([]DealView, 0, len(res.Deals)),
		AlternativeDates: make([]AlternativeView, 0, len(res.AlternativeDates)),
		Error:            res.Error,
		ErrorKind:        string(res.ErrorKind),
		Stats: StatsView{
			ProvidersTotal:     res.ProvidersTotal,
			ProvidersSucceeded: res.ProvidersSucceeded,
			ProvidersFailed:    res.ProvidersFailed,
		},
		CreatedAt: res.CreatedAt,
	}

	for _, d := range res.Deals {
		v.Deals = append(v.Deals, DealView{
			Source:          d.Source,
			Availability:    string(d.Availability),
			RoomType:        d.RoomType,
			DeepLink:        d.DeepLink,
			Price:           d.Price,
			Taxes:           d.Taxes,
			Currency:        d.Currency,
			ConvertedPrice:  d.ConvertedPrice,
			DisplayCurrency: d.DisplayCurrency,
			Symbol:          currency.Symbol(d.DisplayCurrency),
		})
	}
	for _, a := range res.AlternativeDates {
		v.AlternativeDates = append(v.AlternativeDates, AlternativeView{
			Source:          a.Source,
			Dates:           a.Dates,
			CheckIn:         a.CheckIn,
			CheckOut:        a.CheckOut,
			Nights:          a.Nights,
			Price:           a.Price,
			Taxes:           a.Taxes,
			Currency:        a.Currency,
			ConvertedPrice:  a.ConvertedPrice,
			DisplayCurrency: a.DisplayCurrency,
			Symbol:          currency.Symbol(a.DisplayCurrency),
		})
	}
	return v
}

// SnapshotView is the visible state of a comparison session.
type SnapshotView struct {
	ID            string                `json:"id"`
	State         comparison.State      `json:"state"`
	Accommodation catalog.Accommodation `json:"accommodation"`
	Search        SearchView            `json:"search"`
	Result        *ResultView           `json:"result"`
	Error         *ErrorResponse        `json:"error,omitempty"`
	Generation    uint64                `json:"generation"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func (h *Handler) newSnapshotView(s comparison.Snapshot) SnapshotView {
	v := SnapshotView{
		ID:            s.ID,
		State:         s.State,
		Accommodation: s.Accommodation,
		Search:        newSearchView(s.Search),
		Result:        newResultView(s.Result),
		Generation:    s.Generation,
		UpdatedAt:     s.UpdatedAt,
	}
	v.Accommodation.ImageURL = h.images.Resolve(v.Accommodation.ImageURL)
	if s.Err != nil {
		code, _ := errorCode(s.Err)
		v.Error = &ErrorResponse{Error: s.Err.Error(), Code: code}
	}
	return v
}
