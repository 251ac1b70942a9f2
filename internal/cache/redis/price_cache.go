package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qupredict/qupredict/internal/domain"
)

const (
	priceKeyPrefix = "price:"

	// Quotes older than this are useless for locking or resolving a round,
	// so let them expire rather than serve a stale price.
	priceTTL = 30 * time.Second
)

// PriceCache holds the latest quote per pair, written by the oracle feed
// and read by the flash scheduler and the API.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache returns a price cache backed by the shared client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.rdb}
}

var _ domain.PriceCache = (*PriceCache)(nil)

// SetQuote stores the latest quote for a pair.
func (pc *PriceCache) SetQuote(ctx context.Context, quote domain.Quote) error {
	key := priceKeyPrefix + quote.Pair
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"price", strconv.FormatFloat(quote.Price, 'f', -1, 64),
		"ts", strconv.FormatInt(quote.Ts.UnixNano(), 10),
	)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: cache quote %s: %w", quote.Pair, err)
	}
	return nil
}

// GetQuote returns the latest quote for a pair, or domain.ErrNotFound when
// no fresh quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	fields, err := pc.rdb.HGetAll(ctx, priceKeyPrefix+pair).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", pair, err)
	}
	if len(fields) == 0 {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: %w", pair, domain.ErrNotFound)
	}

	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse cached price for %s: %w", pair, err)
	}
	tsNano, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse cached ts for %s: %w", pair, err)
	}

	return domain.Quote{
		Pair:  pair,
		Price: price,
		Ts:    time.Unix(0, tsNano),
	}, nil
}
