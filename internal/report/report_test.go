package report

import (
	"math"
	"strings"
	"testing"

	"github.com/rewired-gh/derivwatch/internal/models"
)

func general(entries, wins, losses int, rate float64, maxWin, maxLoss int) models.GroupStats {
	return models.GroupStats{
		models.CategoryGeneral: {
			Entries: entries, Wins: wins, Losses: losses, WinRate: rate, MaxWin: maxWin, MaxLoss: maxLoss,
		},
	}
}

func testMarket() models.MarketStats {
	return models.MarketStats{
		Connected:  true,
		TotalTicks: 500,
		Groups: map[string]models.GroupStats{
			"3":  general(20, 15, 5, 75, 6, 2),
			"10": general(10, 2, 8, 20, 1, 5),
			"5":  general(0, 0, 0, 0, 0, 0),
			"4":  {models.CategoryEven: {Entries: 99}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize("1HZ10V", testMarket())

	if s.Entries != 30 || s.Wins != 17 || s.Losses != 13 {
		t.Errorf("totals = %d/%d/%d, want 30/17/13", s.Entries, s.Wins, s.Losses)
	}
	if math.Abs(s.WinRate-56.666) > 0.01 {
		t.Errorf("WinRate = %f", s.WinRate)
	}
	if s.MaxWinStreak != 6 || s.MaxLossStreak != 5 {
		t.Errorf("streaks = %d/%d, want 6/5", s.MaxWinStreak, s.MaxLossStreak)
	}
	if !s.Connected || s.TotalTicks != 500 {
		t.Errorf("header = %+v", s)
	}
}

func TestSummarize_NoEntries(t *testing.T) {
	s := Summarize("X", models.MarketStats{})
	if s.WinRate != 0 || s.Entries != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestCompareGroups(t *testing.T) {
	rows := CompareGroups(testMarket())
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want 2", rows)
	}
	if rows[0].Group != "3" || rows[1].Group != "10" {
		t.Errorf("order = %s, %s; want 3, 10", rows[0].Group, rows[1].Group)
	}
}

func TestTrend(t *testing.T) {
	snap := models.MarketSnapshot{
		"1HZ25V": testMarket(),
		"1HZ10V": {Groups: map[string]models.GroupStats{"7": general(5, 0, 5, 0, 0, 5)}},
	}

	rows := Trend(snap)
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want only 1HZ25V", rows)
	}
	r := rows[0]
	if r.Market != "1HZ25V" || r.BestDigits != "3" || r.WorstDigits != "10" {
		t.Errorf("row = %+v", r)
	}
	if r.Spread() != 55 {
		t.Errorf("Spread = %f, want 55", r.Spread())
	}
}

func TestTrend_TieKeepsFirstGroup(t *testing.T) {
	snap := models.MarketSnapshot{
		"1HZ10V": {Groups: map[string]models.GroupStats{
			"8": general(10, 6, 4, 60, 0, 0),
			"6": general(10, 6, 4, 60, 0, 0),
		}},
	}
	r := Trend(snap)[0]
	if r.BestDigits != "6" || r.WorstDigits != "6" {
		t.Errorf("tie row = %+v, want group 6 for both", r)
	}
}

func TestRender(t *testing.T) {
	out := String(models.MarketSnapshot{"1HZ10V": testMarket()})
	for _, want := range []string{"MARKET", "1HZ10V", "up", "56.67%", "75.0% (3)", "20.0% (10)"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}

	if got := String(nil); got != "No market data yet.\n" {
		t.Errorf("empty render = %q", got)
	}
}

func TestRenderGroups(t *testing.T) {
	var b strings.Builder
	if err := RenderGroups(&b, "1HZ25V", testMarket()); err != nil {
		t.Fatalf("RenderGroups: %v", err)
	}
	out := b.String()
	for _, want := range []string{"1HZ25V", "GROUP", "75.0%", "20.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "75.0%") > strings.Index(out, "20.0%") {
		t.Error("groups should be in ascending order")
	}

	b.Reset()
	RenderGroups(&b, "1HZ10V", models.MarketStats{}) //nolint:errcheck
	if b.String() != "No group data for 1HZ10V.\n" {
		t.Errorf("empty render = %q", b.String())
	}
}
