package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest mark prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one retained bus event.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans live events out to dashboards and retains a bounded trade
// history for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamTail returns up to n of the newest entries, oldest first.
	StreamTail(ctx context.Context, stream string, n int) ([]StreamMessage, error)
}

// Bus channels and streams used by the agent.
const (
	ChannelTrades    = "ch:trades"
	ChannelDecisions = "ch:decisions"
	ChannelStatus    = "ch:status"
	ChannelAlerts    = "ch:alerts"
	StreamTrades     = "stream:trades"
)
