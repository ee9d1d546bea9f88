package cue

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	sweepDuration = 0.3
	startGain     = 0.3
	endGain       = 0.01
)

// DefaultSampleRate is used when rendering the sweep to a file.
const DefaultSampleRate = 44100

// SweepFrequency returns the oscillator frequency at t seconds:
// 800 Hz, stepping to 1200 Hz at 0.1 s and back to 800 Hz at 0.2 s.
func SweepFrequency(t float64) float64 {
	if t >= 0.1 && t < 0.2 {
		return 1200
	}
	return 800
}

// SweepGain returns the envelope at t seconds, decaying exponentially from
// 0.3 to 0.01 over the cue.
func SweepGain(t float64) float64 {
	if t <= 0 {
		return startGain
	}
	if t >= sweepDuration {
		return endGain
	}
	return startGain * math.Pow(endGain/startGain, t/sweepDuration)
}

// Sweep renders the tri-tone cue as samples in [-1, 1].
func Sweep(sampleRate int) []float64 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(math.Round(sweepDuration * float64(sampleRate)))
	samples := make([]float64, n)

	phase := 0.0
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = SweepGain(t) * math.Sin(phase)
		phase += 2 * math.Pi * SweepFrequency(t) / float64(sampleRate)
	}
	return samples
}

// EncodeWAV writes mono 16-bit PCM.
func EncodeWAV(samples []float64, sampleRate int) []byte {
	const bitsPerSample = 16
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	for _, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		_ = binary.Write(&buf, binary.LittleEndian, int16(s*math.MaxInt16))
	}
	return buf.Bytes()
}

// BellPlayer rings the terminal bell.
type BellPlayer struct {
	W io.Writer
}

func (p BellPlayer) Play(context.Context) error {
	_, err := p.W.Write([]byte{'\a'})
	return err
}

// NopPlayer discards cues.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context) error { return nil }

// CommandPlayer renders the sweep to a WAV file once and plays it with an
// external command (for example aplay or afplay) on every cue.
type CommandPlayer struct {
	command string
	args    []string
	wavPath string
}

// NewCommandPlayer writes the cue to wavPath and returns a player that runs
// command with args followed by wavPath.
func NewCommandPlayer(command string, args []string, wavPath string) (*CommandPlayer, error) {
	if command == "" {
		return nil, fmt.Errorf("cue command is required")
	}
	if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cue directory: %w", err)
	}
	wav := EncodeWAV(Sweep(DefaultSampleRate), DefaultSampleRate)
	if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cue file: %w", err)
	}
	return &CommandPlayer{command: command, args: args, wavPath: wavPath}, nil
}

// Play runs the command and kills it when ctx is cancelled.
func (p *CommandPlayer) Play(ctx context.Context) error {
	args := append(append([]string(nil), p.args...), p.wavPath)
	if err := exec.CommandContext(ctx, p.command, args...).Run(); err != nil {
		return fmt.Errorf("failed to play cue: %w", err)
	}
	return nil
}
