package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alex-user-go/travelaz/internal/search/types"
)

// ParseStaySearch overlays the stay parameters present in the query string on
// base. Malformed values are rejected; range checks are left to Validate.
func ParseStaySearch(r *http.Request, base types.StaySearch) (types.StaySearch, error) {
	q := r.URL.Query()
	s := base
	s.ChildAges = append([]int(nil), base.ChildAges...)

	var err error
	if s.CheckIn, err = dayParam(q, "checkIn", s.CheckIn); err != nil {
		return s, err
	}
	if s.CheckOut, err = dayParam(q, "checkOut", s.CheckOut); err != nil {
		return s, err
	}
	if s.Adults, err = intParam(q, "adults", s.Adults); err != nil {
		return s, err
	}
	if s.Children, err = intParam(q, "children", s.Children); err != nil {
		return s, err
	}
	if s.Rooms, err = intParam(q, "rooms", s.Rooms); err != nil {
		return s, err
	}

	if q.Has("childAges") {
		if s.ChildAges, err = parseAges(q.Get("childAges")); err != nil {
			return s, err
		}
	} else if s.Children >= 0 && s.Children < len(s.ChildAges) {
		// Fewer children keep the leading ages; more must name theirs.
		s.ChildAges = s.ChildAges[:s.Children]
	}

	if cur := types.NormalizeCurrency(q.Get("currency")); cur != "" {
		s.Currency = cur
	}
	return s, nil
}

func dayParam(q url.Values, name string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	t, err := types.ParseDay(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", types.ErrInvalidSearch, name, err)
	}
	return t, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be an integer", types.ErrInvalidSearch, name)
	}
	return n, nil
}

// parseAges reads a comma separated list such as "7,12".
func parseAges(v string) ([]int, error) {
	var ages []int
	for part := range strings.SplitSeq(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		age, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: child age %q must be an integer", types.ErrInvalidSearch, part)
		}
		ages = append(ages, age)
	}
	return ages, nil
}

// searchRequest is the body of a search update. Omitted fields keep their
// current value.
type searchRequest struct {
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	Adults    *int   `json:"adults"`
	Children  *int   `json:"children"`
	ChildAges []int  `json:"childAges"`
	Rooms     *int   `json:"rooms"`
	Currency  string `json:"currency"`
}

func (req searchRequest) apply(base types.StaySearch) (types.StaySearch, error) {
	s := base
	s.ChildAges = append([]int(nil), base.ChildAges...)

	if req.CheckIn != "" {
		t, err := types.ParseDay(req.CheckIn)
		if err != nil {
			return s, fmt.Errorf("%w: checkIn: %v", types.ErrInvalidSearch, err)
		}
		s.CheckIn = t
	}
	if req.CheckOut != "" {
		t, err := types.ParseDay(req.CheckOut)
		if err != nil {
			return s, fmt.Errorf("%w: checkOut: %v", types.ErrInvalidSearch, err)
		}
		s.CheckOut = t
	}
	if req.Adults != nil {
		s.Adults = *req.Adults
	}
	if req.Rooms != nil {
		s.Rooms = *req.Rooms
	}
	if req.Children != nil {
		s.Children = *req.Children
		if req.ChildAges == nil && s.Children >= 0 && s.Children < len(s.ChildAges) {
			s.ChildAges = s.ChildAges[:s.Children]
		}
	}
	if req.ChildAges != nil {
		s.ChildAges = append([]int(nil), req.ChildAges...)
	}
	if cur := types.NormalizeCurrency(req.Currency); cur != "" {
		s.Currency = cur
	}
	return s, nil
}
