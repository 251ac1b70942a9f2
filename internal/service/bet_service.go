package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/vault"
)

// Bet placement is limited per payout address so one client cannot reserve
// slots across a whole market by spamming escrows it never funds.
const (
	betPlaceLimit  = 10
	betPlaceWindow = time.Minute
)

// StreakTracker records consecutive betting days per payout address and
// returns the current streak length. The tracker is optional: a nil tracker
// turns the feature off entirely, it is never an error path.
type StreakTracker interface {
	RecordBet(ctx context.Context, payoutAddress string, at time.Time) (int, error)
}

// BetService handles bet placement, status lookup and pre-deposit
// cancellation. Everything after the deposit address is handed out belongs
// to the escrow engine.
type BetService struct {
	bets       domain.BetStore
	markets    domain.MarketStore
	cache      domain.BetCache
	limiter    domain.RateLimiter
	bus        domain.SignalBus
	audit      domain.AuditStore
	vault      *vault.Vault
	streaks    StreakTracker
	depositTTL time.Duration
	logger     *slog.Logger
}

// NewBetService creates a BetService with all required dependencies.
// depositTTL is how long a fresh escrow waits for its deposit.
func NewBetService(
	bets domain.BetStore,
	markets domain.MarketStore,
	cache domain.BetCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	v *vault.Vault,
	depositTTL time.Duration,
	logger *slog.Logger,
) *BetService {
	if depositTTL <= 0 {
		depositTTL = 30 * time.Minute
	}
	return &BetService{
		bets:       bets,
		markets:    markets,
		cache:      cache,
		limiter:    limiter,
		bus:        bus,
		audit:      audit,
		vault:      v,
		depositTTL: depositTTL,
		logger:     logger,
	}
}

// WithStreakTracker attaches an optional streak tracker. Without one,
// placement skips streak accounting entirely.
func (s *BetService) WithStreakTracker(t StreakTracker) *BetService {
	s.streaks = t
	return s
}

// PlaceBet validates the request, reserves the slots on the market and
// creates the escrow: a new bet in awaiting_deposit with a deterministic
// one-time deposit address and an expiry deadline. Validation runs before
// any store or ledger interaction.
func (s *BetService) PlaceBet(ctx context.Context, req domain.BetRequest) (domain.Bet, error) {
	allowed, err := s.limiter.Allow(ctx, "bets:"+req.PayoutAddress, betPlaceLimit, betPlaceWindow)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: %w", domain.ErrRateLimited)
	}

	if fe := req.Validate(); !fe.OK() {
		return domain.Bet{}, fe
	}

	now := time.Now().UTC()

	market, err := s.markets.GetByID(ctx, req.MarketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: market %q: %w", req.MarketID, err)
	}
	if !market.AcceptsBets(now) {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: market %q: %w", req.MarketID, domain.ErrMarketClosed)
	}
	if req.Option >= len(market.Options) {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: market %q has no option %d: %w",
			req.MarketID, req.Option, domain.ErrInvalidBet)
	}

	// Reserve the slots before the escrow exists. The store refuses the
	// reservation atomically when it would lift the option above its cap.
	if err := s.markets.AddSlots(ctx, market.ID, req.Option, req.Slots, market.MaxSlotsPerOption); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: %w", err)
	}

	escrowID := uuid.NewString()
	bet := domain.Bet{
		ID:               uuid.NewString(),
		EscrowID:         escrowID,
		MarketID:         market.ID,
		Option:           req.Option,
		Slots:            req.Slots,
		PayoutAddress:    req.PayoutAddress,
		EscrowAddress:    s.vault.DeriveDepositAddress(escrowID),
		ExpectedAmountQu: domain.CostQu(req.Slots, market.MinBetQu),
		Status:           domain.BetStatusAwaitingDeposit,
		ExpiresAt:        now.Add(s.depositTTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.bets.Create(ctx, bet); err != nil {
		// Hand the reserved slots back; the bet never existed.
		if relErr := s.markets.AddSlots(ctx, market.ID, req.Option, -req.Slots, market.MaxSlotsPerOption); relErr != nil {
			s.logger.WarnContext(ctx, "bet_service: slot release after failed create",
				slog.String("market_id", market.ID),
				slog.Int("option", req.Option),
				slog.Int64("slots", req.Slots),
				slog.String("error", relErr.Error()),
			)
		}
		return domain.Bet{}, fmt.Errorf("bet_service: create bet: %w", err)
	}

	if cacheErr := s.cache.Set(ctx, bet); cacheErr != nil {
		s.logger.WarnContext(ctx, "bet_service: cache set failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishEscrowEvent(ctx, domain.EscrowEvent{
		Event:    "bet_placed",
		BetID:    bet.ID,
		EscrowID: bet.EscrowID,
		MarketID: bet.MarketID,
		To:       bet.Status,
		At:       now,
	})
	s.auditLog(ctx, "bet_placed", map[string]any{
		"bet_id":         bet.ID,
		"escrow_id":      bet.EscrowID,
		"market_id":      bet.MarketID,
		"option":         bet.Option,
		"slots":          bet.Slots,
		"expected_qu":    bet.ExpectedAmountQu,
		"payout_address": bet.PayoutAddress,
		"expires_at":     bet.ExpiresAt.Format(time.RFC3339),
	})

	if s.streaks != nil {
		streak, streakErr := s.streaks.RecordBet(ctx, bet.PayoutAddress, now)
		if streakErr != nil {
			s.logger.WarnContext(ctx, "bet_service: streak tracking failed",
				slog.String("payout_address", bet.PayoutAddress),
				slog.String("error", streakErr.Error()),
			)
		} else if streak > 1 {
			s.logger.InfoContext(ctx, "bet_service: betting streak extended",
				slog.String("payout_address", bet.PayoutAddress),
				slog.Int("days", streak),
			)
		}
	}

	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", bet.MarketID),
		slog.Int("option", bet.Option),
		slog.Int64("slots", bet.Slots),
		slog.Int64("expected_qu", bet.ExpectedAmountQu),
	)

	return bet, nil
}

// Status returns the current escrow descriptor for a bet, checking the
// cache first. Polling clients hit this every few seconds, so misses
// back-fill the cache.
func (s *BetService) Status(ctx context.Context, betID string) (domain.Bet, error) {
	bet, err := s.cache.Get(ctx, betID)
	if err == nil {
		return bet, nil
	}

	bet, err = s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: status %q: %w", betID, err)
	}

	if cacheErr := s.cache.Set(ctx, bet); cacheErr != nil {
		s.logger.WarnContext(ctx, "bet_service: cache set failed",
			slog.String("bet_id", betID),
			slog.String("error", cacheErr.Error()),
		)
	}

	return bet, nil
}

// Cancel voids an escrow that is still awaiting its deposit, releasing the
// reserved slots. Once a deposit has been detected the money is on the
// ledger and cancellation is refused with ErrDepositDetected.
func (s *BetService) Cancel(ctx context.Context, escrowID string) error {
	bet, err := s.bets.GetByEscrowID(ctx, escrowID)
	if err != nil {
		return fmt.Errorf("bet_service: cancel escrow %q: %w", escrowID, err)
	}

	switch {
	case bet.Status == domain.BetStatusAwaitingDeposit:
		// cancellable
	case bet.Status.IsTerminal():
		return fmt.Errorf("bet_service: cancel escrow %q: already %s: %w", escrowID, bet.Status, domain.ErrStaleTransition)
	default:
		return fmt.Errorf("bet_service: cancel escrow %q: %w", escrowID, domain.ErrDepositDetected)
	}

	err = s.bets.Advance(ctx, bet.ID, domain.BetStatusAwaitingDeposit, domain.BetStatusExpired, domain.BetUpdate{})
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			// Lost the race. If the engine expired the bet first the outcome
			// matches what the caller asked for; anything else means the
			// deposit landed.
			cur, getErr := s.bets.GetByEscrowID(ctx, escrowID)
			if getErr == nil && cur.Status == domain.BetStatusExpired {
				return nil
			}
			return fmt.Errorf("bet_service: cancel escrow %q: %w", escrowID, domain.ErrDepositDetected)
		}
		return fmt.Errorf("bet_service: cancel escrow %q: %w", escrowID, err)
	}

	s.releaseSlots(ctx, bet)

	if cacheErr := s.cache.Invalidate(ctx, bet.ID); cacheErr != nil {
		s.logger.WarnContext(ctx, "bet_service: cache invalidate failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishEscrowEvent(ctx, domain.EscrowEvent{
		Event:    "bet_cancelled",
		BetID:    bet.ID,
		EscrowID: bet.EscrowID,
		MarketID: bet.MarketID,
		From:     domain.BetStatusAwaitingDeposit,
		To:       domain.BetStatusExpired,
		At:       time.Now().UTC(),
	})
	s.auditLog(ctx, "bet_cancelled", map[string]any{
		"bet_id":    bet.ID,
		"escrow_id": bet.EscrowID,
		"market_id": bet.MarketID,
		"slots":     bet.Slots,
	})

	s.logger.InfoContext(ctx, "bet_service: bet cancelled",
		slog.String("bet_id", bet.ID),
		slog.String("escrow_id", bet.EscrowID),
	)

	return nil
}

// ListByAddress returns the bets placed with the given payout address,
// newest first. Served on the admin surface for support lookups.
func (s *BetService) ListByAddress(ctx context.Context, payoutAddress string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByAddress(ctx, payoutAddress, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list by address: %w", err)
	}
	return bets, nil
}

// ----- Internal helpers -----

// releaseSlots hands a cancelled bet's reservation back to the market.
// Failures are logged, not returned: the bet is already expired and the
// slot count self-corrects only through audit review.
func (s *BetService) releaseSlots(ctx context.Context, bet domain.Bet) {
	market, err := s.markets.GetByID(ctx, bet.MarketID)
	if err != nil {
		s.logger.WarnContext(ctx, "bet_service: slot release market lookup failed",
			slog.String("market_id", bet.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.markets.AddSlots(ctx, bet.MarketID, bet.Option, -bet.Slots, market.MaxSlotsPerOption); err != nil {
		s.logger.WarnContext(ctx, "bet_service: slot release failed",
			slog.String("market_id", bet.MarketID),
			slog.Int("option", bet.Option),
			slog.Int64("slots", bet.Slots),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) publishEscrowEvent(ctx context.Context, evt domain.EscrowEvent) {
	payload, _ := json.Marshal(evt)
	channel := domain.ChannelEscrow + "." + evt.BetID
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "bet_service: publish event failed",
			slog.String("channel", channel),
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "bet_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
