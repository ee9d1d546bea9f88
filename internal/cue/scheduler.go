// Package cue plays the repeating audio cue owned by each active alert.
package cue

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/derivwatch/internal/logger"
)

// DefaultInterval is the spacing between two cues of the same alert.
const DefaultInterval = 1500 * time.Millisecond

// Player emits one cue. Play should return early once ctx is cancelled.
type Player interface {
	Play(ctx context.Context) error
}

// Scheduler runs one repeating cue per key. Loops for different keys are
// independent, so cues from concurrent alerts overlap.
type Scheduler struct {
	mu       sync.Mutex
	player   Player
	interval time.Duration
	loops    map[string]context.CancelFunc
}

func NewScheduler(player Player, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		player:   player,
		interval: interval,
		loops:    make(map[string]context.CancelFunc),
	}
}

// Start begins the loop for key. The first cue plays one interval after
// Start. It returns false if key is already running.
func (s *Scheduler) Start(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loops[key]; exists {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.loops[key] = cancel
	go s.run(ctx, key)
	return true
}

func (s *Scheduler) run(ctx context.Context, key string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// select picks randomly when both are ready
		if ctx.Err() != nil {
			return
		}
		if err := s.player.Play(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Cue for %s failed: %v", key, err)
		}
	}
}

// Stop cancels the loop for key without waiting for an in-flight cue to
// finish. No cue starts after Stop returns. Stopping an unknown or already
// stopped key is a no-op that returns false.
func (s *Scheduler) Stop(key string) bool {
	s.mu.Lock()
	cancel, exists := s.loops[key]
	delete(s.loops, key)
	s.mu.Unlock()

	if !exists {
		return false
	}
	cancel()
	return true
}

// StopAll cancels every loop and returns how many were running.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	loops := s.loops
	s.loops = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, cancel := range loops {
		cancel()
	}
	return len(loops)
}

// Len returns the number of live loops.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}
