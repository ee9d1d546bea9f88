// Package report derives per-market summaries from a snapshot and renders
// them as plain text for chat replies.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rewired-gh/derivwatch/internal/models"
)

// Summary aggregates the geral category over all groups of one market.
type Summary struct {
	Market        string
	Connected     bool
	TotalTicks    int
	Entries       int
	Wins          int
	Losses        int
	WinRate       float64
	MaxWinStreak  int
	MaxLossStreak int
}

// GroupRow is one bar of the per-group comparison.
type GroupRow struct {
	Group   string
	WinRate float64
	Entries int
	Wins    int
	Losses  int
}

// TrendRow holds the best and worst group of one market.
type TrendRow struct {
	Market      string
	Best        float64
	Worst       float64
	BestDigits  string
	WorstDigits string
}

// Spread is the gap between the best and worst rates.
func (r TrendRow) Spread() float64 {
	return r.Best - r.Worst
}

const noDigits = "N/A"

// Summarize totals a market. Groups without a geral category are skipped.
func Summarize(market string, m models.MarketStats) Summary {
	s := Summary{Market: market, Connected: m.Connected, TotalTicks: m.TotalTicks}
	for _, key := range m.GroupKeys() {
		g := m.Group(key)
		if !g.HasGeneral() {
			continue
		}
		c := g.General()
		s.Entries += c.Entries
		s.Wins += c.Wins
		s.Losses += c.Losses
		s.MaxWinStreak = max(s.MaxWinStreak, c.MaxWin)
		s.MaxLossStreak = max(s.MaxLossStreak, c.MaxLoss)
	}
	if s.Entries > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Entries) * 100
	}
	return s
}

// CompareGroups returns one row per group with at least one entry, in
// ascending group order.
func CompareGroups(m models.MarketStats) []GroupRow {
	var rows []GroupRow
	for _, key := range m.GroupKeys() {
		c := m.Group(key).General()
		if c.Entries <= 0 {
			continue
		}
		rows = append(rows, GroupRow{
			Group:   key,
			WinRate: c.WinRate,
			Entries: c.Entries,
			Wins:    c.Wins,
			Losses:  c.Losses,
		})
	}
	return rows
}

// Trend finds the best and worst group per market in display order.
// Markets whose best rate is 0 are omitted.
func Trend(snap models.MarketSnapshot) []TrendRow {
	var rows []TrendRow
	for _, market := range snap.Markets() {
		m := snap.Market(market)
		row := TrendRow{Market: market, Best: 0, Worst: 100, BestDigits: noDigits, WorstDigits: noDigits}
		for _, key := range m.GroupKeys() {
			c := m.Group(key).General()
			if c.Entries <= 0 {
				continue
			}
			if c.WinRate > row.Best {
				row.Best = c.WinRate
				row.BestDigits = key
			}
			if c.WinRate < row.Worst {
				row.Worst = c.WinRate
				row.WorstDigits = key
			}
		}
		if row.Best > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// Render writes a market overview followed by the trend table.
func Render(w io.Writer, snap models.MarketSnapshot) error {
	if len(snap) == 0 {
		_, err := io.WriteString(w, "No market data yet.\n")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tLINK\tTICKS\tENTRIES\tRATE\tMAX W\tMAX L")
	for _, market := range snap.Markets() {
		s := Summarize(market, snap.Market(market))
		link := "down"
		if s.Connected {
			link = "up"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f%%\t%d\t%d\n",
			s.Market, link, s.TotalTicks, s.Entries, s.WinRate, s.MaxWinStreak, s.MaxLossStreak)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	trend := Trend(snap)
	if len(trend) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tBEST\tWORST\tSPREAD")
	for _, r := range trend {
		fmt.Fprintf(tw, "%s\t%.1f%% (%s)\t%.1f%% (%s)\t%.1f\n",
			r.Market, r.Best, r.BestDigits, r.Worst, r.WorstDigits, r.Spread())
	}
	return tw.Flush()
}

// RenderGroups writes the per-group comparison of one market.
func RenderGroups(w io.Writer, market string, m models.MarketStats) error {
	rows := CompareGroups(m)
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "No group data for %s.\n", market)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", market)
	fmt.Fprintln(tw, "GROUP\tRATE\tENTRIES\tW\tL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.1f%%\t%d\t%d\t%d\n", r.Group, r.WinRate, r.Entries, r.Wins, r.Losses)
	}
	return tw.Flush()
}

// String renders snap into a string.
func String(snap models.MarketSnapshot) string {
	var b strings.Builder
	_ = Render(&b, snap)
	return b.String()
}
