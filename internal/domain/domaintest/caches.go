package domaintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// MarketCache is an in-memory domain.MarketCache.
type MarketCache struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketCache returns an empty MarketCache.
func NewMarketCache() *MarketCache {
	return &MarketCache{markets: make(map[string]domain.Market)}
}

var _ domain.MarketCache = (*MarketCache)(nil)

func (c *MarketCache) Set(ctx context.Context, market domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[market.ID] = cloneMarket(market)
	return nil
}

func (c *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("domaintest: market %s: %w", id, domain.ErrNotFound)
	}
	return cloneMarket(m), nil
}

func (c *MarketCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	return nil
}

// BetCache is an in-memory domain.BetCache.
type BetCache struct {
	mu   sync.Mutex
	bets map[string]domain.Bet
}

// NewBetCache returns an empty BetCache.
func NewBetCache() *BetCache {
	return &BetCache{bets: make(map[string]domain.Bet)}
}

var _ domain.BetCache = (*BetCache)(nil)

func (c *BetCache) Set(ctx context.Context, bet domain.Bet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bets[bet.ID] = bet
	return nil
}

func (c *BetCache) Get(ctx context.Context, id string) (domain.Bet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bets[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("domaintest: bet %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (c *BetCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bets, id)
	return nil
}

// PriceCache is an in-memory domain.PriceCache.
type PriceCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

// NewPriceCache returns an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]domain.Quote)}
}

var _ domain.PriceCache = (*PriceCache)(nil)

func (c *PriceCache) SetQuote(ctx context.Context, quote domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[quote.Pair] = quote
	return nil
}

func (c *PriceCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[pair]
	if !ok {
		return domain.Quote{}, fmt.Errorf("domaintest: quote %s: %w", pair, domain.ErrNotFound)
	}
	return q, nil
}

// RateLimiter is a configurable domain.RateLimiter. The zero value allows
// everything.
type RateLimiter struct {
	mu sync.Mutex

	// Deny makes Allow report false.
	Deny bool
	// Err, when set, is returned by Allow.
	Err error

	// Keys records every key passed to Allow.
	Keys []string
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	if l.Err != nil {
		return false, l.Err
	}
	return !l.Deny, nil
}

// LockManager is an in-memory domain.LockManager tracking held keys.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

var _ domain.LockManager = (*LockManager)(nil)

func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[key] {
		return nil, fmt.Errorf("domaintest: lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.held[key] = true
	return func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		delete(lm.held, key)
	}, nil
}

// Hold marks a key as already locked so tests can simulate contention.
func (lm *LockManager) Hold(key string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.held[key] = true
}
