// Package flash runs the round scheduler for the fixed-cadence up/down
// game: open a round at the oracle's current price, lock it when the wager
// window ends, and resolve it against the closing price.
//
// The scheduler is stateless between ticks. Every pass looks at the pair's
// latest round and applies the one step it is due for, so a restart resumes
// mid-round, and stranded pending wagers of an already resolved round are
// settled before the next round opens. Each pass runs under a distributed
// lock, keeping one scheduler active per pair across replicas.
package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/payout"
)

const (
	tickInterval = time.Second

	defaultOpenWindow = time.Minute
	defaultLockWindow = 30 * time.Second

	flashLockPrefix = "flash:"
	flashLockTTL    = 15 * time.Second
)

// Config carries the scheduler's cadence for one pair.
type Config struct {
	Pair       string
	OpenWindow time.Duration // how long a round accepts wagers
	LockWindow time.Duration // gap between lock and resolution
}

// Scheduler drives flash rounds for a single pair.
type Scheduler struct {
	rounds domain.RoundStore
	wagers domain.WagerStore
	prices domain.PriceCache
	locks  domain.LockManager
	bus    domain.SignalBus
	audit  domain.AuditStore
	cfg    Config
	logger *slog.Logger
}

// NewScheduler wires a round scheduler. Zero windows fall back to the
// defaults.
func NewScheduler(
	rounds domain.RoundStore,
	wagers domain.WagerStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.OpenWindow <= 0 {
		cfg.OpenWindow = defaultOpenWindow
	}
	if cfg.LockWindow <= 0 {
		cfg.LockWindow = defaultLockWindow
	}
	return &Scheduler{
		rounds: rounds,
		wagers: wagers,
		prices: prices,
		locks:  locks,
		bus:    bus,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "flash_scheduler"), slog.String("pair", cfg.Pair)),
	}
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "flash scheduler started",
		slog.Duration("open_window", s.cfg.OpenWindow),
		slog.Duration("lock_window", s.cfg.LockWindow))
	defer s.logger.Info("flash scheduler stopped")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduler tick failed", slog.Any("error", err))
			}
		}
	}
}

// Tick applies the one step the pair's latest round is due for.
func (s *Scheduler) Tick(ctx context.Context) error {
	unlock, err := s.locks.Acquire(ctx, flashLockPrefix+s.cfg.Pair, flashLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "scheduler active elsewhere")
			return nil
		}
		return fmt.Errorf("flash: acquire scheduler lock: %w", err)
	}
	defer unlock()

	now := time.Now().UTC()
	cur, err := s.rounds.Latest(ctx, s.cfg.Pair)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.openRound(ctx, now)
		}
		return fmt.Errorf("flash: latest round: %w", err)
	}

	switch {
	case cur.Status.IsTerminal():
		// Settle anything a crash stranded before moving on.
		s.settleWagers(ctx, cur)
		return s.openRound(ctx, now)
	case cur.Status == domain.RoundStatusOpen && !now.Before(cur.LocksAt):
		return s.lockRound(ctx, cur)
	case cur.Status == domain.RoundStatusLocked && !now.Before(cur.ClosesAt):
		return s.beginResolve(ctx, cur)
	case cur.Status == domain.RoundStatusResolving:
		return s.resolveRound(ctx, cur)
	}
	return nil
}

// openRound starts the next round at the oracle's current price. A missing
// quote postpones the round rather than opening it blind.
func (s *Scheduler) openRound(ctx context.Context, now time.Time) error {
	quote, err := s.prices.GetQuote(ctx, s.cfg.Pair)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "no opening price, round postponed")
			return nil
		}
		return fmt.Errorf("flash: opening quote: %w", err)
	}

	round := domain.Round{
		ID:        uuid.NewString(),
		Pair:      s.cfg.Pair,
		OpenPrice: quote.Price,
		OpensAt:   now,
		LocksAt:   now.Add(s.cfg.OpenWindow),
		ClosesAt:  now.Add(s.cfg.OpenWindow + s.cfg.LockWindow),
		Status:    domain.RoundStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.rounds.Create(ctx, round); err != nil {
		return fmt.Errorf("flash: create round: %w", err)
	}

	s.publishRoundEvent(ctx, "round_opened", round)
	s.auditLog(ctx, "round_opened", map[string]any{
		"roundId":   round.ID,
		"pair":      round.Pair,
		"openPrice": round.OpenPrice,
	})
	s.logger.InfoContext(ctx, "round opened",
		slog.String("round_id", round.ID),
		slog.Float64("open_price", round.OpenPrice),
		slog.Time("locks_at", round.LocksAt))
	return nil
}

func (s *Scheduler) lockRound(ctx context.Context, round domain.Round) error {
	if err := s.rounds.SetStatus(ctx, round.ID, domain.RoundStatusOpen, domain.RoundStatusLocked); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil
		}
		return fmt.Errorf("flash: lock round %s: %w", round.ID, err)
	}
	round.Status = domain.RoundStatusLocked

	s.publishRoundEvent(ctx, "round_locked", round)
	s.auditLog(ctx, "round_locked", map[string]any{"roundId": round.ID, "pair": round.Pair})
	s.logger.InfoContext(ctx, "round locked",
		slog.String("round_id", round.ID),
		slog.Int64("up_pool_qu", round.UpPoolQu),
		slog.Int64("down_pool_qu", round.DownPoolQu))
	return nil
}

func (s *Scheduler) beginResolve(ctx context.Context, round domain.Round) error {
	if err := s.rounds.SetStatus(ctx, round.ID, domain.RoundStatusLocked, domain.RoundStatusResolving); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil
		}
		return fmt.Errorf("flash: round %s resolving: %w", round.ID, err)
	}
	round.Status = domain.RoundStatusResolving
	s.publishRoundEvent(ctx, "round_resolving", round)
	return nil
}

// resolveRound records the closing price and outcome, then settles the
// round's wagers. The outcome is persisted before any wager settles, so a
// crash can never settle one round against two different prices.
func (s *Scheduler) resolveRound(ctx context.Context, round domain.Round) error {
	quote, err := s.prices.GetQuote(ctx, round.Pair)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "no closing price, resolution postponed",
				slog.String("round_id", round.ID))
			return nil
		}
		return fmt.Errorf("flash: closing quote: %w", err)
	}

	outcome := resolveOutcome(round.OpenPrice, quote.Price)
	if err := s.rounds.Resolve(ctx, round.ID, quote.Price, outcome); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil
		}
		return fmt.Errorf("flash: resolve round %s: %w", round.ID, err)
	}
	round.ClosePrice = quote.Price
	round.Outcome = outcome
	round.Status = domain.RoundStatusResolved

	s.settleWagers(ctx, round)

	s.publishRoundEvent(ctx, "round_resolved", round)
	s.auditLog(ctx, "round_resolved", map[string]any{
		"roundId":    round.ID,
		"pair":       round.Pair,
		"openPrice":  round.OpenPrice,
		"closePrice": round.ClosePrice,
		"outcome":    string(outcome),
	})
	s.logger.InfoContext(ctx, "round resolved",
		slog.String("round_id", round.ID),
		slog.String("outcome", string(outcome)),
		slog.Float64("close_price", round.ClosePrice))
	return nil
}

// settleWagers settles every still-pending wager of a finished round. Safe
// to repeat: already settled wagers are skipped by the store's guard.
func (s *Scheduler) settleWagers(ctx context.Context, round domain.Round) {
	pending, err := s.wagers.ListPending(ctx, round.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "pending wager list failed",
			slog.String("round_id", round.ID), slog.Any("error", err))
		return
	}

	for _, w := range pending {
		var status domain.WagerStatus
		var payoutQu int64
		switch {
		case round.Status == domain.RoundStatusCancelled, round.Outcome == domain.RoundOutcomePush:
			status, payoutQu = domain.WagerStatusRefunded, w.AmountQu
		case string(w.Side) == string(round.Outcome):
			status = domain.WagerStatusWon
			payoutQu = payout.SettleWager(w.AmountQu, w.Side, round.Outcome,
				round.Pool(w.Side), round.OpposingPool(w.Side))
		default:
			status = domain.WagerStatusLost
		}

		if err := s.wagers.Settle(ctx, w.ID, status, payoutQu); err != nil {
			if !errors.Is(err, domain.ErrStaleTransition) {
				s.logger.WarnContext(ctx, "wager settlement failed",
					slog.String("wager_id", w.ID), slog.Any("error", err))
			}
			continue
		}

		payload, _ := json.Marshal(map[string]any{
			"event":    "wager_settled",
			"wagerId":  w.ID,
			"roundId":  round.ID,
			"pair":     round.Pair,
			"side":     string(w.Side),
			"outcome":  string(round.Outcome),
			"status":   string(status),
			"payoutQu": payoutQu,
			"at":       time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err := s.bus.StreamAppend(ctx, domain.StreamSettlements, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement stream append failed",
				slog.String("wager_id", w.ID), slog.Any("error", err))
		}
		s.auditLog(ctx, "wager_settled", map[string]any{
			"wagerId":  w.ID,
			"roundId":  round.ID,
			"status":   string(status),
			"payoutQu": payoutQu,
		})
	}
}

// ----- Internal helpers -----

func (s *Scheduler) publishRoundEvent(ctx context.Context, event string, round domain.Round) {
	payload, _ := json.Marshal(domain.RoundEvent{
		Event:      event,
		RoundID:    round.ID,
		Pair:       round.Pair,
		Status:     round.Status,
		Outcome:    round.Outcome,
		OpenPrice:  round.OpenPrice,
		ClosePrice: round.ClosePrice,
		At:         time.Now().UTC(),
	})
	if err := s.bus.Publish(ctx, domain.ChannelRounds, payload); err != nil {
		s.logger.WarnContext(ctx, "round event publish failed",
			slog.String("round_id", round.ID), slog.Any("error", err))
	}
}

func (s *Scheduler) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event), slog.Any("error", err))
	}
}

func resolveOutcome(openPrice, closePrice float64) domain.RoundOutcome {
	switch {
	case closePrice > openPrice:
		return domain.RoundOutcomeUp
	case closePrice < openPrice:
		return domain.RoundOutcomeDown
	default:
		return domain.RoundOutcomePush
	}
}
