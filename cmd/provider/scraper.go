package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// profile tunes how often a mock source misbehaves.
type profile struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	noRoomsRate float64
	soldOutRate float64
	currency    string
}

// scraper imitates one scraping endpoint with random latency and outcomes.
type scraper struct {
	name    string
	profile profile
	logger  *slog.Logger
}

type scrapeRequest struct {
	HotelURL  string `json:"hotelUrl"`
	HotelName string `json:"hotelName"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	Adults    int    `json:"adults"`
	Children  int    `json:"children"`
	Rooms     int    `json:"rooms"`
	ChildAges []int  `json:"child_ages"`
	Currency  string `json:"currency"`
}

type scrapeData struct {
	Price        float64 `json:"price"`
	Taxes        float64 `json:"taxes"`
	Currency     string  `json:"currency"`
	Availability string  `json:"availability"`
	RoomType     string  `json:"room_type"`
	SourceURL    string  `json:"source_url"`
}

type scrapeAlternative struct {
	Dates        string  `json:"dates"`
	CheckInDate  string  `json:"checkin_date"`
	CheckOutDate string  `json:"checkout_date"`
	Nights       int     `json:"nights"`
	Price        float64 `json:"price"`
	Taxes        float64 `json:"taxes"`
	Currency     string  `json:"currency"`
}

type scrapeResponse struct {
	Data             *scrapeData         `json:"data,omitempty"`
	Error            string              `json:"error,omitempty"`
	AlternativeDates []scrapeAlternative `json:"alternative_dates,omitempty"`
}

const dateLayout = "2006-01-02"

func newScraper(name string, p profile, logger *slog.Logger) *scraper {
	return &scraper{name: name, profile: p, logger: logger.With("source", name)}
}

func (s *scraper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, scrapeResponse{Error: "invalid request body"})
		return
	}

	checkIn, err1 := time.Parse(dateLayout, req.CheckIn)
	checkOut, err2 := time.Parse(dateLayout, req.CheckOut)
	if req.HotelURL == "" || err1 != nil || err2 != nil || !checkOut.After(checkIn) {
		writeJSON(w, http.StatusBadRequest, scrapeResponse{Error: "hotelUrl, checkIn and checkOut are required"})
		return
	}
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	rooms := max(req.Rooms, 1)

	// Simulate scraping latency
	latency := s.profile.minLatency
	if spread := s.profile.maxLatency - s.profile.minLatency; spread > 0 {
		latency += rand.N(spread)
	}
	select {
	case <-time.After(latency):
	case <-r.Context().Done():
		s.logger.Debug("client went away", "hotel", req.HotelName)
		return
	}

	perNight := nightlyRate(req.HotelURL) * float64(rooms)
	roll := rand.Float64()

	switch {
	case roll < s.profile.failureRate:
		s.logger.Info("simulated failure", "hotel", req.HotelName)
		writeJSON(w, http.StatusBadGateway, scrapeResponse{Error: "scrape failed: page did not load"})

	case roll < s.profile.failureRate+s.profile.noRoomsRate:
		s.logger.Info("simulated no availability", "hotel", req.HotelName)
		writeJSON(w, http.StatusOK, scrapeResponse{
			Error:            "No rooms available for the selected dates",
			AlternativeDates: s.alternatives(checkIn, nights, perNight),
		})

	case roll < s.profile.failureRate+s.profile.noRoomsRate+s.profile.soldOutRate:
		writeJSON(w, http.StatusOK, scrapeResponse{Data: &scrapeData{
			Currency:     s.profile.currency,
			Availability: "Sold Out",
			SourceURL:    req.HotelURL,
		}})

	default:
		price := round2(perNight * float64(nights) * (0.9 + rand.Float64()*0.2))
		writeJSON(w, http.StatusOK, scrapeResponse{Data: &scrapeData{
			Price:        price,
			Taxes:        round2(price * 0.15),
			Currency:     s.profile.currency,
			Availability: "Available",
			RoomType:     roomType(req.Adults+req.Children, rooms),
			SourceURL:    req.HotelURL,
		}})
	}
}

// alternatives offers the same stay shifted a few days either side.
func (s *scraper) alternatives(checkIn time.Time, nights int, perNight float64) []scrapeAlternative {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var out []scrapeAlternative
	for _, shift := range []int{-2, 3, 7} {
		in := checkIn.AddDate(0, 0, shift)
		if in.Before(today) {
			continue
		}
		outDate := in.AddDate(0, 0, nights)
		price := round2(perNight * float64(nights) * (0.85 + rand.Float64()*0.3))
		out = append(out, scrapeAlternative{
			Dates:        in.Format("Jan 2") + " - " + outDate.Format("Jan 2"),
			CheckInDate:  in.Format(dateLayout),
			CheckOutDate: outDate.Format(dateLayout),
			Nights:       nights,
			Price:        price,
			Taxes:        round2(price * 0.15),
			Currency:     s.profile.currency,
		})
	}
	return out
}

// nightlyRate derives a stable base rate from the hotel URL.
func nightlyRate(hotelURL string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(hotelURL))
	return float64(80 + h.Sum32()%320)
}

func roomType(guests, rooms int) string {
	switch {
	case rooms > 1:
		return fmt.Sprintf("%d x Double Room", rooms)
	case guests > 2:
		return "Family Room"
	default:
		return "Deluxe Double Room"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
