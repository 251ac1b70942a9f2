package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market lookups in front of the store.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// BetCache keeps the current escrow descriptor hot so status polls do not
// hit the store on every tick.
type BetCache interface {
	Set(ctx context.Context, bet Bet) error
	Get(ctx context.Context, id string) (Bet, error)
	Invalidate(ctx context.Context, id string) error
}

// PriceCache holds the latest quote per price pair.
type PriceCache interface {
	SetQuote(ctx context.Context, quote Quote) error
	GetQuote(ctx context.Context, pair string) (Quote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
