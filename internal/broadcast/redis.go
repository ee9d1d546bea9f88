// Package broadcast fans alert transitions out over Redis pub/sub.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rewired-gh/derivwatch/internal/models"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "derivwatch_alerts"

// Transition kinds.
const (
	KindTriggered = "triggered"
	KindCleared   = "cleared"
)

// Event is the JSON payload published for each transition.
type Event struct {
	Kind   string             `json:"type"`
	Alert  models.ActiveAlert `json:"alert"`
	Reason string             `json:"reason,omitempty"`
	At     time.Time          `json:"at"`
}

// Encode returns the wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectRedis opens a client and checks it with PING.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return rdb, nil
}

// Publisher publishes alert transitions to a single channel.
type Publisher struct {
	r       *redis.Client
	channel string
}

func NewPublisher(r *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{r: r, channel: channel}
}

// Publish sends e to the configured channel.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.r.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.r.Close()
}
