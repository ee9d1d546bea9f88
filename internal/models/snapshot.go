// Package models defines the core domain entities: market snapshots, notifications,
// tickets and collection status as served by the tick-analyzer backend.
package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Category names used inside a group.
const (
	CategoryGeneral = "geral"
	CategoryEven    = "pares"
	CategoryOdd     = "impares"
)

// CanonicalMarkets is the fixed display order of the volatility indices.
var CanonicalMarkets = []string{"1HZ10V", "1HZ25V", "1HZ50V", "1HZ75V", "1HZ100V"}

// MarketSnapshot maps a market identifier to its aggregated statistics.
//
// All reads go through the accessor methods below. A missing market, group or
// category, or a field with the wrong JSON type, reads as the zero value; the
// evaluation code never has to guard against absent keys.
type MarketSnapshot map[string]MarketStats

// MarketStats is the per-market block of the /data payload.
type MarketStats struct {
	Connected  bool                  `json:"connected"`
	TotalTicks int                   `json:"total_ticks"`
	Groups     map[string]GroupStats `json:"groups"`
}

// GroupStats maps a category name to its statistics.
type GroupStats map[string]CategoryStats

// CategoryStats holds the win/loss counters for one category of one digit group.
type CategoryStats struct {
	Entries    int     `json:"entradas"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"taxa_acerto"`
	MaxWin     int     `json:"max_win"`
	MaxLoss    int     `json:"max_loss"`
	WinStreak  int     `json:"seq_win_atual"`
	LossStreak int     `json:"seq_loss_atual"`
}

// Market returns the stats for market, or the zero value.
func (s MarketSnapshot) Market(market string) MarketStats {
	if s == nil {
		return MarketStats{}
	}
	return s[market]
}

// Markets returns the snapshot's market identifiers in display order.
func (s MarketSnapshot) Markets() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return OrderMarkets(keys)
}

// Group returns the stats for a digit group, or an empty group.
func (m MarketStats) Group(key string) GroupStats {
	if m.Groups == nil {
		return nil
	}
	return m.Groups[key]
}

// GroupKeys returns the group keys sorted numerically; non-numeric keys sort last.
func (m MarketStats) GroupKeys() []string {
	keys := make([]string, 0, len(m.Groups))
	for k := range m.Groups {
		keys = append(keys, k)
	}
	SortGroupKeys(keys)
	return keys
}

// Category returns the stats for a category, or the zero value.
func (g GroupStats) Category(name string) CategoryStats {
	if g == nil {
		return CategoryStats{}
	}
	return g[name]
}

// General returns the "geral" category.
func (g GroupStats) General() CategoryStats {
	return g.Category(CategoryGeneral)
}

// HasGeneral reports whether the group carries a "geral" block at all.
func (g GroupStats) HasGeneral() bool {
	if g == nil {
		return false
	}
	_, ok := g[CategoryGeneral]
	return ok
}

// UnmarshalJSON decodes a category leniently: null, strings and floats are
// accepted for the numeric fields and anything unparseable becomes zero.
func (c *CategoryStats) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A non-object category is treated as empty.
		*c = CategoryStats{}
		return nil
	}
	*c = CategoryStats{
		Entries:    int(number(raw["entradas"])),
		Wins:       int(number(raw["wins"])),
		Losses:     int(number(raw["losses"])),
		WinRate:    number(raw["taxa_acerto"]),
		MaxWin:     int(number(raw["max_win"])),
		MaxLoss:    int(number(raw["max_loss"])),
		WinStreak:  int(number(raw["seq_win_atual"])),
		LossStreak: int(number(raw["seq_loss_atual"])),
	}
	return nil
}

// UnmarshalJSON tolerates a non-object groups field by dropping it.
func (m *MarketStats) UnmarshalJSON(data []byte) error {
	var raw struct {
		Connected  json.RawMessage `json:"connected"`
		TotalTicks json.RawMessage `json:"total_ticks"`
		Groups     json.RawMessage `json:"groups"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*m = MarketStats{}
		return nil
	}

	out := MarketStats{TotalTicks: int(number(raw.TotalTicks))}
	_ = json.Unmarshal(raw.Connected, &out.Connected)

	var groups map[string]json.RawMessage
	if err := json.Unmarshal(raw.Groups, &groups); err == nil {
		out.Groups = make(map[string]GroupStats, len(groups))
		for key, body := range groups {
			// a malformed group is skipped, its siblings survive
			var cats map[string]json.RawMessage
			if err := json.Unmarshal(body, &cats); err != nil {
				continue
			}
			g := make(GroupStats, len(cats))
			for name, catBody := range cats {
				var cs CategoryStats
				_ = cs.UnmarshalJSON(catBody)
				g[name] = cs
			}
			out.Groups[key] = g
		}
	}

	*m = out
	return nil
}

func number(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return 0
}

// OrderMarkets sorts market identifiers into display order: the canonical
// indices first in their fixed order, then any other market lexically.
func OrderMarkets(markets []string) []string {
	rank := make(map[string]int, len(CanonicalMarkets))
	for i, m := range CanonicalMarkets {
		rank[m] = i
	}

	out := append([]string(nil), markets...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// SortGroupKeys sorts digit-group keys numerically in place.
func SortGroupKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

// DataResponse is the /data envelope.
type DataResponse struct {
	Success   bool           `json:"success"`
	Data      MarketSnapshot `json:"data"`
	Timestamp int64          `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// UpdatedAt converts the epoch-seconds timestamp.
func (r DataResponse) UpdatedAt() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(r.Timestamp, 0)
}
