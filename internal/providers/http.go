package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alex-user-go/travelaz/internal/search/types"
)

// NoAvailabilityMessage is used when a source reports no rooms without its own message.
const NoAvailabilityMessage = "No availability for the selected dates. Try one of the alternative dates."

// defaultCurrency is assumed when a source omits its currency.
const defaultCurrency = "USD"

// HTTPProvider calls one scraping endpoint, e.g. POST {baseURL}/scrape-booking.
type HTTPProvider struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPProvider creates a new HTTPProvider.
func NewHTTPProvider(name, baseURL, path string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider name.
func (p *HTTPProvider) Name() string {
	return p.name
}

type scrapeRequest struct {
	HotelURL  string `json:"hotelUrl"`
	HotelName string `json:"hotelName,omitempty"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	Adults    int    `json:"adults"`
	Children  int    `json:"children"`
	Rooms     int    `json:"rooms"`
	ChildAges []int  `json:"child_ages,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type scrapeResponse struct {
	Data             *scrapeData         `json:"data"`
	Error            string              `json:"error"`
	AlternativeDates []scrapeAlternative `json:"alternative_dates"`
}

type scrapeData struct {
	Price        *float64 `json:"price"`
	Taxes        *float64 `json:"taxes"`
	Currency     string   `json:"currency"`
	Availability string   `json:"availability"`
	RoomType     string   `json:"room_type"`
	SourceURL    string   `json:"source_url"`
}

type scrapeAlternative struct {
	Dates        string   `json:"dates"`
	CheckInDate  string   `json:"checkin_date"`
	CheckOutDate string   `json:"checkout_date"`
	Nights       int      `json:"nights"`
	Price        *float64 `json:"price"`
	Taxes        *float64 `json:"taxes"`
	Currency     string   `json:"currency"`
}

// FetchDeal issues one scrape request and classifies the response.
func (p *HTTPProvider) FetchDeal(ctx context.Context, src Source, search types.StaySearch, hotelName string) Outcome {
	body, err := json.Marshal(scrapeRequest{
		HotelURL:  src.HotelURL,
		HotelName: hotelName,
		CheckIn:   search.CheckIn.Format(types.DateLayout),
		CheckOut:  search.CheckOut.Format(types.DateLayout),
		Adults:    search.Adults,
		Children:  search.Children,
		Rooms:     search.Rooms,
		ChildAges: search.ChildAges,
		Currency:  search.Currency,
	})
	if err != nil {
		return p.failure(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return p.failure(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.failure(fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return p.failure(fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var parsed scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return p.failure(fmt.Errorf("failed to parse response: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return p.failure(err)
	}

	return p.classify(parsed, search)
}

func (p *HTTPProvider) classify(resp scrapeResponse, search types.StaySearch) Outcome {
	if resp.Error != "" {
		if len(resp.AlternativeDates) == 0 {
			return p.failure(fmt.Errorf("provider error: %s", resp.Error))
		}
		return Outcome{
			Kind:         KindUnavailable,
			Alternatives: p.alternatives(resp.AlternativeDates, search),
			Reason:       resp.Error,
		}
	}

	if resp.Data == nil {
		return p.failure(fmt.Errorf("malformed response: missing data"))
	}

	d := resp.Data
	q := Quote{
		Currency:     types.NormalizeCurrency(d.Currency),
		Availability: types.SoldOut,
		RoomType:     strings.TrimSpace(d.RoomType),
		DeepLink:     d.SourceURL,
	}
	if q.Currency == "" {
		q.Currency = defaultCurrency
	}
	if d.Price != nil && *d.Price > 0 {
		q.Price = *d.Price
	}
	if d.Taxes != nil && *d.Taxes > 0 {
		q.Taxes = *d.Taxes
	}
	if strings.EqualFold(strings.TrimSpace(d.Availability), string(types.Available)) {
		q.Availability = types.Available
	}

	return Outcome{Kind: KindSuccess, Quote: q}
}

func (p *HTTPProvider) alternatives(in []scrapeAlternative, search types.StaySearch) []types.AlternativeDate {
	out := make([]types.AlternativeDate, 0, len(in))
	for _, a := range in {
		alt := types.AlternativeDate{
			Source:   p.name,
			Dates:    a.Dates,
			CheckIn:  a.CheckInDate,
			CheckOut: a.CheckOutDate,
			Nights:   a.Nights,
			Currency: types.NormalizeCurrency(a.Currency),
		}
		if alt.Currency == "" {
			alt.Currency = defaultCurrency
		}
		if a.Price != nil && *a.Price > 0 {
			alt.Price = *a.Price
		}
		if a.Taxes != nil && *a.Taxes > 0 {
			alt.Taxes = *a.Taxes
		}
		if alt.Nights == 0 {
			alt.Nights = nightsBetween(a.CheckInDate, a.CheckOutDate, search.Nights())
		}
		out = append(out, alt)
	}
	return out
}

func (p *HTTPProvider) failure(err error) Outcome {
	return Outcome{
		Kind:   KindFailure,
		Reason: fmt.Sprintf("Could not get prices from %s. Please try again.", p.name),
		Err:    fmt.Errorf("%s: %w: %w", p.name, ErrSourceUnavailable, err),
	}
}

func nightsBetween(checkIn, checkOut string, fallback int) int {
	in, err := types.ParseDay(checkIn)
	if err != nil {
		return fallback
	}
	out, err := types.ParseDay(checkOut)
	if err != nil || !out.After(in) {
		return fallback
	}
	return int(out.Sub(in).Hours() / 24)
}
