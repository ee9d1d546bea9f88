package cue

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type countingPlayer struct{ n atomic.Int64 }

func (p *countingPlayer) Play(context.Context) error {
	p.n.Add(1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_StartPlaysRepeatedly(t *testing.T) {
	p := &countingPlayer{}
	s := NewScheduler(p, 5*time.Millisecond)
	defer s.StopAll()

	if !s.Start("1HZ10V-7") {
		t.Fatal("Start returned false for new key")
	}
	if s.Start("1HZ10V-7") {
		t.Error("second Start for the same key should return false")
	}
	waitFor(t, func() bool { return p.n.Load() >= 3 })
}

func TestScheduler_StopIsIdempotentAndFinal(t *testing.T) {
	p := &countingPlayer{}
	s := NewScheduler(p, 5*time.Millisecond)

	s.Start("a")
	waitFor(t, func() bool { return p.n.Load() >= 1 })

	if !s.Stop("a") {
		t.Fatal("Stop returned false for running key")
	}
	if s.Stop("a") {
		t.Error("second Stop should return false")
	}
	if s.Len() != 0 {
		t.Error("key should not be running after Stop")
	}

	// a cue that passed the cancellation check before Stop may still land
	time.Sleep(10 * time.Millisecond)
	after := p.n.Load()
	time.Sleep(30 * time.Millisecond)
	if p.n.Load() != after {
		t.Errorf("cue played after Stop: %d -> %d", after, p.n.Load())
	}
}

func TestScheduler_StopAll(t *testing.T) {
	p := &countingPlayer{}
	s := NewScheduler(p, 5*time.Millisecond)
	s.Start("a")
	s.Start("b")
	s.Start("c")

	if n := s.StopAll(); n != 3 {
		t.Errorf("StopAll = %d, want 3", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after StopAll", s.Len())
	}
	if n := s.StopAll(); n != 0 {
		t.Errorf("second StopAll = %d, want 0", n)
	}
}

// slowPlayer ignores cancellation and holds each cue for d.
type slowPlayer struct {
	d       time.Duration
	started atomic.Int64
}

func (p *slowPlayer) Play(context.Context) error {
	p.started.Add(1)
	time.Sleep(p.d)
	return nil
}

func TestScheduler_StopDoesNotWaitForSlowCue(t *testing.T) {
	p := &slowPlayer{d: 300 * time.Millisecond}
	s := NewScheduler(p, 5*time.Millisecond)

	s.Start("a")
	waitFor(t, func() bool { return p.started.Load() >= 1 })

	begin := time.Now()
	if !s.Stop("a") {
		t.Fatal("Stop returned false for running key")
	}
	if took := time.Since(begin); took > 50*time.Millisecond {
		t.Errorf("Stop took %v while a cue was playing", took)
	}

	after := p.started.Load()
	time.Sleep(p.d + 50*time.Millisecond)
	if got := p.started.Load(); got != after {
		t.Errorf("cue started after Stop: %d -> %d", after, got)
	}
}

func TestScheduler_StopAllDoesNotWaitForSlowCue(t *testing.T) {
	p := &slowPlayer{d: 300 * time.Millisecond}
	s := NewScheduler(p, 5*time.Millisecond)
	s.Start("a")
	s.Start("b")
	waitFor(t, func() bool { return p.started.Load() >= 2 })

	begin := time.Now()
	if n := s.StopAll(); n != 2 {
		t.Errorf("StopAll = %d, want 2", n)
	}
	if took := time.Since(begin); took > 50*time.Millisecond {
		t.Errorf("StopAll took %v", took)
	}
}

func TestScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(NopPlayer{}, 0)
	if s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
}

func TestSweepEnvelope(t *testing.T) {
	tests := []struct {
		t        float64
		wantFreq float64
	}{
		{0, 800},
		{0.05, 800},
		{0.1, 1200},
		{0.15, 1200},
		{0.2, 800},
		{0.29, 800},
	}
	for _, tt := range tests {
		if got := SweepFrequency(tt.t); got != tt.wantFreq {
			t.Errorf("SweepFrequency(%v) = %v, want %v", tt.t, got, tt.wantFreq)
		}
	}

	if SweepGain(0) != 0.3 {
		t.Errorf("start gain = %v", SweepGain(0))
	}
	if math.Abs(SweepGain(0.3)-0.01) > 1e-12 {
		t.Errorf("end gain = %v", SweepGain(0.3))
	}
	if !(SweepGain(0.1) > SweepGain(0.2)) {
		t.Error("gain should decay monotonically")
	}
}

func TestSweepLengthAndBounds(t *testing.T) {
	samples := Sweep(8000)
	if len(samples) != 2400 {
		t.Fatalf("len = %d, want 2400", len(samples))
	}
	for i, s := range samples {
		if math.Abs(s) > 0.3+1e-9 {
			t.Fatalf("sample %d = %v exceeds envelope", i, s)
		}
	}
}

func TestEncodeWAV(t *testing.T) {
	wav := EncodeWAV([]float64{0, 1, -1}, 8000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d, want 50", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Errorf("sample rate = %d", rate)
	}
	if v := int16(binary.LittleEndian.Uint16(wav[46:48])); v != math.MaxInt16 {
		t.Errorf("second sample = %d, want %d", v, math.MaxInt16)
	}
}

func TestBellPlayer(t *testing.T) {
	var buf bytes.Buffer
	if err := (BellPlayer{W: &buf}).Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "\a" {
		t.Errorf("bell wrote %q", buf.String())
	}
}

func TestNewCommandPlayer_WritesCueFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cues", "alert.wav")
	if _, err := NewCommandPlayer("true", nil, path); err != nil {
		t.Fatalf("NewCommandPlayer: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("cue file missing: %v", err)
	}
	if info.Size() <= 44 {
		t.Errorf("cue file too small: %d bytes", info.Size())
	}

	if _, err := NewCommandPlayer("", nil, path); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestCommandPlayer_CancelKillsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert.wav")
	p, err := NewCommandPlayer("sh", []string{"-c", "sleep 3"}, path)
	if err != nil {
		t.Fatalf("NewCommandPlayer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	if err := p.Play(ctx); err == nil {
		t.Error("expected error from cancelled command")
	}
	if took := time.Since(begin); took > time.Second {
		t.Errorf("Play took %v after cancellation", took)
	}
}
