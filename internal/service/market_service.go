// Package service implements the application services between the HTTP
// layer and the stores: market lifecycle, bet placement and flash wagers.
// Services own validation, rate limiting, cache write-through, event
// publishing and audit logging; escrow progression belongs to the engine.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qupredict/qupredict/internal/domain"
)

// MarketService handles market creation, lookup and resolution.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		bus:     bus,
		audit:   audit,
		logger:  logger,
	}
}

// Create validates a draft and persists a new market. Price and range
// markets default to Yes/No options when no labels are given; basic
// markets must bring their own. New markets open for betting immediately.
func (s *MarketService) Create(ctx context.Context, draft domain.MarketDraft) (domain.Market, error) {
	now := time.Now().UTC()

	if fe := draft.Validate(now); !fe.OK() {
		return domain.Market{}, fe
	}

	labels := draft.OptionLabels
	if draft.Type != domain.MarketTypeBasic && len(labels) == 0 {
		labels = []string{"Yes", "No"}
	}
	options := make([]domain.MarketOption, len(labels))
	for i, label := range labels {
		options[i] = domain.MarketOption{Index: i, Label: label}
	}

	market := domain.Market{
		ID:                uuid.NewString(),
		Question:          draft.Question,
		Description:       draft.Description,
		Type:              draft.Type,
		Options:           options,
		MinBetQu:          draft.MinBetQu,
		MaxSlotsPerOption: draft.MaxSlotsPerOption,
		OracleFeeBps:      draft.OracleFeeBps,
		ResolutionTarget:  draft.ResolutionTarget,
		ResolutionLow:     draft.ResolutionLow,
		ResolutionHigh:    draft.ResolutionHigh,
		CreatorAddress:    draft.CreatorAddress,
		CloseDate:         draft.CloseDate.UTC(),
		EndDate:           draft.EndDate.UTC(),
		Status:            domain.MarketStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	if cacheErr := s.cache.Set(ctx, market); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", market.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishMarketEvent(ctx, "market_created", market.ID, map[string]any{
		"question": market.Question,
		"type":     string(market.Type),
		"options":  len(market.Options),
	})
	s.auditLog(ctx, "market_created", map[string]any{
		"market_id": market.ID,
		"question":  market.Question,
		"type":      string(market.Type),
		"creator":   market.CreatorAddress,
		"close":     market.CloseDate.Format(time.RFC3339),
		"end":       market.EndDate.Format(time.RFC3339),
	})

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", market.ID),
		slog.String("type", string(market.Type)),
		slog.Int("options", len(market.Options)),
	)

	return market, nil
}

// Get retrieves a market by ID, checking the cache first and falling back
// to the persistent store on a miss.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// List returns markets filtered by status ("" for all) with pagination.
func (s *MarketService) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets with the given status ("" for all).
func (s *MarketService) Count(ctx context.Context, status domain.MarketStatus) (int64, error) {
	count, err := s.markets.Count(ctx, status)
	if err != nil {
		return 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return count, nil
}

// Resolve records the winning option for a market. Settlement of the
// market's bets happens on the engine's next pass, after it observes the
// resolved status.
func (s *MarketService) Resolve(ctx context.Context, id string, winningOption int) error {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: resolve market %q: %w", id, err)
	}
	if winningOption < 0 || winningOption >= len(m.Options) {
		return fmt.Errorf("market_service: resolve market %q: option %d: %w", id, winningOption, domain.ErrInvalidBet)
	}

	if err := s.markets.Resolve(ctx, id, winningOption); err != nil {
		return fmt.Errorf("market_service: resolve market %q: %w", id, err)
	}

	if cacheErr := s.cache.Invalidate(ctx, id); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishMarketEvent(ctx, "market_resolved", id, map[string]any{
		"winning_option": winningOption,
	})
	s.auditLog(ctx, "market_resolved", map[string]any{
		"market_id":      id,
		"winning_option": winningOption,
	})

	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", id),
		slog.Int("winning_option", winningOption),
	)

	return nil
}

// ResolveFromPrice resolves a price or range market from an observed price
// and returns the winning option: option 0 when the price meets the target
// (or falls inside the bracket), option 1 otherwise.
func (s *MarketService) ResolveFromPrice(ctx context.Context, id string, price float64) (int, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("market_service: resolve market %q from price: %w", id, err)
	}

	var winning int
	switch m.Type {
	case domain.MarketTypePrice:
		if price < m.ResolutionTarget {
			winning = 1
		}
	case domain.MarketTypeRange:
		if price < m.ResolutionLow || price > m.ResolutionHigh {
			winning = 1
		}
	default:
		return 0, fmt.Errorf("market_service: resolve market %q from price: %s markets resolve by option: %w",
			id, m.Type, domain.ErrInvalidBet)
	}

	if err := s.Resolve(ctx, id, winning); err != nil {
		return 0, err
	}
	return winning, nil
}

// Cancel voids a market before resolution. Refunds for its escrows are
// handled by the engine once it observes the cancelled status.
func (s *MarketService) Cancel(ctx context.Context, id string) error {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: cancel market %q: %w", id, err)
	}
	if m.Status.IsTerminal() {
		return fmt.Errorf("market_service: cancel market %q: already %s: %w", id, m.Status, domain.ErrStaleTransition)
	}

	if err := s.markets.SetStatus(ctx, id, m.Status, domain.MarketStatusCancelled); err != nil {
		return fmt.Errorf("market_service: cancel market %q: %w", id, err)
	}

	if cacheErr := s.cache.Invalidate(ctx, id); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishMarketEvent(ctx, "market_cancelled", id, nil)
	s.auditLog(ctx, "market_cancelled", map[string]any{
		"market_id": id,
		"from":      string(m.Status),
	})

	s.logger.InfoContext(ctx, "market_service: market cancelled",
		slog.String("market_id", id),
		slog.String("from", string(m.Status)),
	)

	return nil
}

// ----- Internal helpers -----

func (s *MarketService) publishMarketEvent(ctx context.Context, event, marketID string, extra map[string]any) {
	payload := map[string]any{
		"event":     event,
		"market_id": marketID,
		"at":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, domain.ChannelMarkets, evt); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish event failed",
			slog.String("event", event),
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
