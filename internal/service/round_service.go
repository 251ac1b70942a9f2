package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/payout"
)

// Wager placement limit per payout address. Flash rounds turn over fast,
// so the window is tighter than for market bets.
const (
	wagerPlaceLimit  = 20
	wagerPlaceWindow = time.Minute
)

// WagerReceipt pairs a placed wager with its indicative multiplier quote.
// The quote reflects the pools at placement time; later wagers shift it.
type WagerReceipt struct {
	Wager      domain.FlashWager
	Multiplier decimal.Decimal
}

// RoundService handles flash round lookups and wager placement. Round
// scheduling and settlement belong to the flash scheduler.
type RoundService struct {
	rounds     domain.RoundStore
	wagers     domain.WagerStore
	limiter    domain.RateLimiter
	bus        domain.SignalBus
	audit      domain.AuditStore
	minWagerQu int64
	logger     *slog.Logger
}

// NewRoundService creates a RoundService with all required dependencies.
func NewRoundService(
	rounds domain.RoundStore,
	wagers domain.WagerStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	minWagerQu int64,
	logger *slog.Logger,
) *RoundService {
	if minWagerQu < 1 {
		minWagerQu = 1
	}
	return &RoundService{
		rounds:     rounds,
		wagers:     wagers,
		limiter:    limiter,
		bus:        bus,
		audit:      audit,
		minWagerQu: minWagerQu,
		logger:     logger,
	}
}

// Current returns the most recent round for the pair, whatever its phase.
func (s *RoundService) Current(ctx context.Context, pair string) (domain.Round, error) {
	round, err := s.rounds.Latest(ctx, pair)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: current round for %q: %w", pair, err)
	}
	return round, nil
}

// Get returns a single round by ID.
func (s *RoundService) Get(ctx context.Context, id string) (domain.Round, error) {
	round, err := s.rounds.GetByID(ctx, id)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get round %q: %w", id, err)
	}
	return round, nil
}

// List returns rounds for a pair ("" for all), newest first.
func (s *RoundService) List(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Round, error) {
	rounds, err := s.rounds.List(ctx, pair, opts)
	if err != nil {
		return nil, fmt.Errorf("round_service: list rounds: %w", err)
	}
	return rounds, nil
}

// PlaceWager joins an open round with an up/down wager. The pool update
// carries the authoritative open-phase guard, so a wager racing the lock
// fails with ErrRoundLocked rather than slipping into a locked round.
func (s *RoundService) PlaceWager(ctx context.Context, req domain.WagerRequest) (WagerReceipt, error) {
	allowed, err := s.limiter.Allow(ctx, "wagers:"+req.PayoutAddress, wagerPlaceLimit, wagerPlaceWindow)
	if err != nil {
		return WagerReceipt{}, fmt.Errorf("round_service: rate limiter: %w", err)
	}
	if !allowed {
		return WagerReceipt{}, fmt.Errorf("round_service: place wager: %w", domain.ErrRateLimited)
	}

	fe := req.Validate()
	if req.AmountQu > 0 && req.AmountQu < s.minWagerQu {
		fe.Add("amount", fmt.Sprintf("must be at least %d qus", s.minWagerQu))
	}
	if !fe.OK() {
		return WagerReceipt{}, fe
	}

	now := time.Now().UTC()

	round, err := s.rounds.GetByID(ctx, req.RoundID)
	if err != nil {
		return WagerReceipt{}, fmt.Errorf("round_service: place wager: round %q: %w", req.RoundID, err)
	}
	if !round.AcceptsWagers(now) {
		return WagerReceipt{}, fmt.Errorf("round_service: place wager: round %q: %w", req.RoundID, domain.ErrRoundLocked)
	}

	if err := s.rounds.AddToPool(ctx, round.ID, req.Side, req.AmountQu); err != nil {
		return WagerReceipt{}, fmt.Errorf("round_service: place wager: %w", err)
	}

	wager := domain.FlashWager{
		ID:            uuid.NewString(),
		RoundID:       round.ID,
		PayoutAddress: req.PayoutAddress,
		Side:          req.Side,
		AmountQu:      req.AmountQu,
		Status:        domain.WagerStatusPending,
		CreatedAt:     now,
	}

	if err := s.wagers.Create(ctx, wager); err != nil {
		// Back the pool contribution out; the wager never existed.
		if relErr := s.rounds.AddToPool(ctx, round.ID, req.Side, -req.AmountQu); relErr != nil {
			s.logger.WarnContext(ctx, "round_service: pool release after failed create",
				slog.String("round_id", round.ID),
				slog.String("side", string(req.Side)),
				slog.Int64("amount_qu", req.AmountQu),
				slog.String("error", relErr.Error()),
			)
		}
		return WagerReceipt{}, fmt.Errorf("round_service: create wager: %w", err)
	}

	// Quote against the pools as this wager left them.
	ownPool := round.Pool(req.Side) + req.AmountQu
	multiplier := payout.Multiplier(ownPool, round.OpposingPool(req.Side))

	evt, _ := json.Marshal(map[string]any{
		"event":      "wager_placed",
		"round_id":   round.ID,
		"pair":       round.Pair,
		"side":       string(req.Side),
		"amount_qu":  req.AmountQu,
		"multiplier": multiplier.StringFixed(4),
		"at":         now.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelRounds, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "round_service: publish event failed",
			slog.String("round_id", round.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	s.auditLog(ctx, "wager_placed", map[string]any{
		"wager_id":       wager.ID,
		"round_id":       round.ID,
		"side":           string(req.Side),
		"amount_qu":      req.AmountQu,
		"payout_address": req.PayoutAddress,
	})

	s.logger.InfoContext(ctx, "round_service: wager placed",
		slog.String("wager_id", wager.ID),
		slog.String("round_id", round.ID),
		slog.String("side", string(req.Side)),
		slog.Int64("amount_qu", req.AmountQu),
	)

	return WagerReceipt{Wager: wager, Multiplier: multiplier}, nil
}

// ----- Internal helpers -----

func (s *RoundService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "round_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
