// Package oracle polls the price feed and fans quotes out to the cache and
// the bus. The poller can be paused at runtime from the admin surface; while
// paused, the flash scheduler stops opening rounds because the cached quotes
// age out.
package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

const defaultPollInterval = 5 * time.Second

// Source yields the current price for a pair.
type Source interface {
	Quote(ctx context.Context, pair string) (domain.Quote, error)
}

// Config carries the poller cadence and the pairs it follows.
type Config struct {
	PollInterval time.Duration
	Pairs        []string
}

// Feed polls the source for every configured pair.
type Feed struct {
	source Source
	prices domain.PriceCache
	bus    domain.SignalBus
	cfg    Config
	paused atomic.Bool
	logger *slog.Logger
}

// NewFeed wires a price poller. A zero interval falls back to the default.
func NewFeed(source Source, prices domain.PriceCache, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Feed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Feed{
		source: source,
		prices: prices,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "oracle_feed")),
	}
}

// Run polls on the configured interval until the context is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "oracle feed started",
		slog.Duration("poll_interval", f.cfg.PollInterval),
		slog.Any("pairs", f.cfg.Pairs))
	defer f.logger.Info("oracle feed stopped")

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll fetches every configured pair once. Fetch failures are retried on the
// next interval without surfacing; an unreachable feed must not take the
// daemon down with it.
func (f *Feed) Poll(ctx context.Context) {
	if f.paused.Load() {
		return
	}
	for _, pair := range f.cfg.Pairs {
		quote, err := f.source.Quote(ctx, pair)
		if err != nil {
			f.logger.DebugContext(ctx, "quote fetch failed",
				slog.String("pair", pair), slog.Any("error", err))
			continue
		}
		if err := f.prices.SetQuote(ctx, quote); err != nil {
			f.logger.WarnContext(ctx, "price cache write failed",
				slog.String("pair", pair), slog.Any("error", err))
		}
		payload, _ := json.Marshal(map[string]any{
			"pair":  quote.Pair,
			"price": quote.Price,
			"ts":    quote.Ts.UTC().Format(time.RFC3339Nano),
		})
		if err := f.bus.Publish(ctx, domain.ChannelPrices+"."+pair, payload); err != nil {
			f.logger.WarnContext(ctx, "price event publish failed",
				slog.String("pair", pair), slog.Any("error", err))
		}
	}
}

// Pause stops polling until Resume. Quotes already cached age out on their
// TTL, which freezes round scheduling shortly after.
func (f *Feed) Pause() {
	if f.paused.CompareAndSwap(false, true) {
		f.logger.Info("oracle feed paused")
	}
}

// Resume restarts polling after a Pause.
func (f *Feed) Resume() {
	if f.paused.CompareAndSwap(true, false) {
		f.logger.Info("oracle feed resumed")
	}
}

// Paused reports whether the poller is currently paused.
func (f *Feed) Paused() bool {
	return f.paused.Load()
}
