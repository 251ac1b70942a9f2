package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qupredict/qupredict/internal/domain"
)

const (
	betKeyPrefix = "bet:"

	// Clients poll escrow status every few seconds. A short TTL keeps the
	// hot path off Postgres while bounding staleness if the engine stops
	// writing through.
	betTTL = 30 * time.Second
)

// BetCache keeps current escrow descriptors hot for the status poll path.
// The engine writes through on every transition.
type BetCache struct {
	rdb *redis.Client
}

// NewBetCache returns a bet cache backed by the shared client.
func NewBetCache(c *Client) *BetCache {
	return &BetCache{rdb: c.rdb}
}

var _ domain.BetCache = (*BetCache)(nil)

// Set stores a bet descriptor with a short TTL.
func (bc *BetCache) Set(ctx context.Context, bet domain.Bet) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("redis: marshal bet %s: %w", bet.ID, err)
	}

	key := betKeyPrefix + bet.ID
	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, betTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: cache bet %s: %w", bet.ID, err)
	}
	return nil
}

// Get returns a cached bet or domain.ErrNotFound on a miss.
func (bc *BetCache) Get(ctx context.Context, id string) (domain.Bet, error) {
	data, err := bc.rdb.HGet(ctx, betKeyPrefix+id, "data").Bytes()
	if err == redis.Nil {
		return domain.Bet{}, fmt.Errorf("redis: bet %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("redis: get bet %s: %w", id, err)
	}

	var bet domain.Bet
	if err := json.Unmarshal(data, &bet); err != nil {
		return domain.Bet{}, fmt.Errorf("redis: unmarshal bet %s: %w", id, err)
	}
	return bet, nil
}

// Invalidate drops a bet from the cache. Terminal transitions call this
// instead of Set so finished escrows age out immediately.
func (bc *BetCache) Invalidate(ctx context.Context, id string) error {
	if err := bc.rdb.Del(ctx, betKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis: invalidate bet %s: %w", id, err)
	}
	return nil
}
