package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticket is one tick observed by the backend, as listed by /recent-tickets.
type Ticket struct {
	Market    string  `json:"market"`
	Tick      float64 `json:"tick"`
	Digit     int     `json:"digit"`
	Timestamp float64 `json:"timestamp"`
}

// Time converts the fractional epoch-seconds timestamp.
func (t Ticket) Time() time.Time {
	sec := int64(t.Timestamp)
	nsec := int64((t.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Status is the /status payload.
type Status struct {
	Success            bool            `json:"success"`
	IsRunning          bool            `json:"is_running"`
	Connections        map[string]bool `json:"connections"`
	TotalTickets       int             `json:"total_tickets"`
	RecentTicketsCount int             `json:"recent_tickets_count"`
	DataFilter         Filter          `json:"data_filter"`
	Error              string          `json:"error,omitempty"`
}

// TicketsResponse is the /recent-tickets payload.
type TicketsResponse struct {
	Success bool     `json:"success"`
	Tickets []Ticket `json:"tickets"`
	Count   int      `json:"count"`
	Error   string   `json:"error,omitempty"`
}

// ActionResponse is returned by the start/stop/reset/filter endpoints.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Reason returns whichever explanation the backend supplied.
func (r ActionResponse) Reason() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "unknown error"
}

const unfilteredToken = "sem_filtro"

// Filter selects how many of the most recent ticks the backend analyses.
// The zero value with All set means no filter.
type Filter struct {
	Size int
	All  bool
}

// AllowedFilterSizes are the tick windows the backend accepts.
var AllowedFilterSizes = []int{25, 50, 100, 500, 1000, 3000}

// DefaultFilter is the backend's initial window.
var DefaultFilter = Filter{Size: 1000}

// Unfiltered analyses every stored tick.
var Unfiltered = Filter{All: true}

// Validate checks the filter against the backend's accepted values.
func (f Filter) Validate() error {
	if f.All {
		return nil
	}
	for _, n := range AllowedFilterSizes {
		if f.Size == n {
			return nil
		}
	}
	return fmt.Errorf("invalid filter %d: must be one of %v or %q", f.Size, AllowedFilterSizes, unfilteredToken)
}

func (f Filter) String() string {
	if f.All {
		return unfilteredToken
	}
	return strconv.Itoa(f.Size)
}

// ParseFilter accepts a tick count or "sem_filtro".
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, errors.New("filter must not be empty")
	}
	if strings.EqualFold(s, unfilteredToken) {
		return Unfiltered, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
	}
	f := Filter{Size: n}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// MarshalJSON encodes the filter as a number or the "sem_filtro" token.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.All {
		return json.Marshal(unfilteredToken)
	}
	return json.Marshal(f.Size)
}

// UnmarshalJSON accepts either encoding; anything else decodes as the zero filter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Filter{Size: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && strings.EqualFold(s, unfilteredToken) {
		*f = Unfiltered
		return nil
	}
	*f = Filter{}
	return nil
}
