package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alex-user-go/travelaz/internal/providers"
	"github.com/alex-user-go/travelaz/internal/search/types"
)

func TestScraper_SpeaksProviderProtocol(t *testing.T) {
	tests := []struct {
		name     string
		profile  profile
		wantKind providers.Kind
		check    func(t *testing.T, out providers.Outcome)
	}{
		{
			name:     "available",
			profile:  profile{currency: "ZAR"},
			wantKind: providers.KindSuccess,
			check: func(t *testing.T, out providers.Outcome) {
				if out.Quote.Availability != types.Available || out.Quote.Price <= 0 || out.Quote.Currency != "ZAR" {
					t.Errorf("unexpected quote: %+v", out.Quote)
				}
			},
		},
		{
			name:     "sold out",
			profile:  profile{soldOutRate: 1, currency: "USD"},
			wantKind: providers.KindSuccess,
			check: func(t *testing.T, out providers.Outcome) {
				if out.Quote.Availability != types.SoldOut {
					t.Errorf("availability = %s, want SoldOut", out.Quote.Availability)
				}
			},
		},
		{
			name:     "no rooms",
			profile:  profile{noRoomsRate: 1, currency: "USD"},
			wantKind: providers.KindUnavailable,
			check: func(t *testing.T, out providers.Outcome) {
				if len(out.Alternatives) == 0 {
					t.Error("expected alternative dates")
				}
				for _, a := range out.Alternatives {
					if a.Nights != 2 || a.CheckIn == "" {
						t.Errorf("unexpected alternative: %+v", a)
					}
				}
			},
		},
		{
			name:     "failure",
			profile:  profile{failureRate: 1, currency: "USD"},
			wantKind: providers.KindFailure,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checkIn := types.Day(time.Now()).AddDate(0, 0, 30)
	search := types.StaySearch{CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), Adults: 2, Rooms: 1, Currency: "USD"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newScraper("booking", tt.profile, logger))
			defer srv.Close()

			p := providers.NewHTTPProvider("Booking.com", srv.URL, "/", time.Second)
			out := p.FetchDeal(context.Background(), providers.Source{
				Key:      "booking",
				Name:     "Booking.com",
				HotelURL: "https://www.booking.com/hotel/za/the-silo.html",
			}, search, "The Silo Hotel")

			if out.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s (%v)", out.Kind, tt.wantKind, out.Err)
			}
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}
}

func TestNightlyRateIsStable(t *testing.T) {
	a := nightlyRate("https://www.booking.com/hotel/za/the-silo.html")
	b := nightlyRate("https://www.booking.com/hotel/za/the-silo.html")
	if a != b || a < 80 || a >= 400 {
		t.Errorf("unexpected rates %v, %v", a, b)
	}
}
