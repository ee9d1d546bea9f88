package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestOrderMarkets(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "canonical plus unknown",
			input: []string{"X", "1HZ100V", "1HZ50V", "1HZ10V", "1HZ75V", "1HZ25V"},
			want:  []string{"1HZ10V", "1HZ25V", "1HZ50V", "1HZ75V", "1HZ100V", "X"},
		},
		{
			name:  "already ordered",
			input: []string{"1HZ10V", "1HZ25V", "1HZ50V", "1HZ75V", "1HZ100V", "X"},
			want:  []string{"1HZ10V", "1HZ25V", "1HZ50V", "1HZ75V", "1HZ100V", "X"},
		},
		{
			name:  "unknowns sorted lexically after canonical",
			input: []string{"R_50", "1HZ75V", "BOOM500"},
			want:  []string{"1HZ75V", "BOOM500", "R_50"},
		},
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OrderMarkets(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("OrderMarkets(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestOrderMarkets_DoesNotMutateInput(t *testing.T) {
	in := []string{"X", "1HZ10V"}
	_ = OrderMarkets(in)
	if in[0] != "X" {
		t.Errorf("input mutated: %v", in)
	}
}

func TestSortGroupKeys(t *testing.T) {
	keys := []string{"10", "3", "15", "x", "7"}
	SortGroupKeys(keys)
	want := []string{"3", "7", "10", "15", "x"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("SortGroupKeys = %v, want %v", keys, want)
	}
}

func TestSnapshotDecode_ZeroDefaults(t *testing.T) {
	payload := `{
		"1HZ10V": {
			"connected": true,
			"total_ticks": 420,
			"groups": {
				"7": {"geral": {"entradas": 12, "wins": 9, "losses": 3, "taxa_acerto": 75.0, "seq_loss_atual": 7}},
				"8": {"geral": {"entradas": "15", "seq_loss_atual": null, "taxa_acerto": "33.3"}},
				"9": {"geral": "garbage"},
				"10": {},
				"11": 0
			}
		},
		"1HZ25V": {"connected": false, "groups": "not-an-object"}
	}`

	var snap MarketSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	m := snap.Market("1HZ10V")
	if !m.Connected || m.TotalTicks != 420 {
		t.Errorf("market header = %+v", m)
	}
	if got := m.Group("7").General().LossStreak; got != 7 {
		t.Errorf("group 7 loss streak = %d, want 7", got)
	}
	g8 := m.Group("8").General()
	if g8.Entries != 15 || g8.LossStreak != 0 || g8.WinRate != 33.3 {
		t.Errorf("group 8 lenient decode = %+v", g8)
	}
	if got := m.Group("9").General(); got != (CategoryStats{}) {
		t.Errorf("group 9 should be zero, got %+v", got)
	}
	if m.Group("10").HasGeneral() {
		t.Error("group 10 has no geral block")
	}
	if _, ok := m.Groups["11"]; ok {
		t.Error("malformed group 11 should be skipped")
	}
	if len(m.Groups) != 4 {
		t.Errorf("groups = %d, want 4 surviving a malformed sibling", len(m.Groups))
	}
	if got := m.Group("99").General().LossStreak; got != 0 {
		t.Errorf("missing group should read zero, got %d", got)
	}
	if got := snap.Market("1HZ25V").Groups; got != nil {
		t.Errorf("non-object groups should be dropped, got %v", got)
	}
	if got := snap.Market("nope").Group("7").General(); got != (CategoryStats{}) {
		t.Errorf("missing market should read zero, got %+v", got)
	}

	var nilSnap MarketSnapshot
	if got := nilSnap.Market("1HZ10V"); got.TotalTicks != 0 {
		t.Error("nil snapshot should read zero")
	}
}

func TestMarketStats_GroupKeys(t *testing.T) {
	m := MarketStats{Groups: map[string]GroupStats{"12": nil, "3": nil, "7": nil}}
	want := []string{"3", "7", "12"}
	if got := m.GroupKeys(); !reflect.DeepEqual(got, want) {
		t.Errorf("GroupKeys = %v, want %v", got, want)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		input   string
		want    Filter
		wantErr bool
	}{
		{"25", Filter{Size: 25}, false},
		{"3000", Filter{Size: 3000}, false},
		{"sem_filtro", Unfiltered, false},
		{"SEM_FILTRO", Unfiltered, false},
		{"42", Filter{}, true},
		{"abc", Filter{}, true},
		{"", Filter{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFilter(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFilter(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFilterJSON(t *testing.T) {
	b, _ := json.Marshal(map[string]Filter{"filter": Unfiltered})
	if string(b) != `{"filter":"sem_filtro"}` {
		t.Errorf("unfiltered encoding = %s", b)
	}
	b, _ = json.Marshal(map[string]Filter{"filter": {Size: 100}})
	if string(b) != `{"filter":100}` {
		t.Errorf("sized encoding = %s", b)
	}

	var st Status
	if err := json.Unmarshal([]byte(`{"success":true,"is_running":true,"data_filter":"sem_filtro"}`), &st); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !st.DataFilter.All || !st.IsRunning {
		t.Errorf("status decode = %+v", st)
	}
}

func TestTicketTime(t *testing.T) {
	tk := Ticket{Timestamp: 1700000000.5}
	got := tk.Time()
	if got.Unix() != 1700000000 || got.Nanosecond() != 500000000 {
		t.Errorf("Ticket.Time() = %v", got)
	}
}

func TestNotificationAge(t *testing.T) {
	now := time.Now()
	n := Notification{Timestamp: now.Add(-31 * time.Second)}
	if n.Age(now) != 31*time.Second {
		t.Errorf("Age = %v", n.Age(now))
	}
	if AlertKey("1HZ10V", "7") != "1HZ10V-7" {
		t.Errorf("AlertKey = %q", AlertKey("1HZ10V", "7"))
	}
}
