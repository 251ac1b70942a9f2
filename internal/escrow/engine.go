// Package escrow runs the reconciliation engine that drives every bet from
// deposit detection through contract join, settlement, and payout sweep.
//
// The engine is a polling loop over the live bet set. Each pass it advances
// market phases whose dates have passed, then walks live bets grouped by
// market and applies the one transition each bet is due for. All writes go
// through the store's compare-and-swap transition so a stale pass can never
// regress a bet, and each escrow is reconciled under a distributed lock so
// two engine replicas never act on the same escrow at once.
//
// Payouts are only computed once a market's pool is stable: settlement of a
// resolved market waits until no live bet remains below active_in_sc, since
// a pending join or expiry would shift the pool under bets already settled.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/payout"
	"github.com/qupredict/qupredict/internal/platform/qubic"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultLockTTL      = 30 * time.Second

	// submitRetryTTL spaces out gateway submissions for one escrow when the
	// previous attempt failed or is still pending.
	submitRetryTTL     = 2 * time.Minute
	guardCleanupEvery  = time.Minute
	escrowLockPrefix   = "escrow:"
	marketPoolPrefix   = "pool:"
	sweepRefPrefix     = "sweep:"
	refundRefPrefix    = "refund:"
	feeSweepRefPrefix  = "fees:"
	joinGuardKeyPrefix = "join:"
)

// Gateway is the slice of the ledger gateway the engine needs. Submissions
// are idempotent: resubmitting a join for the same escrow, or a transfer
// with the same reference, returns the original transaction ID.
type Gateway interface {
	GetBalance(ctx context.Context, address string) (qubic.Balance, error)
	SubmitJoinBet(ctx context.Context, req qubic.JoinBetRequest) (string, error)
	SubmitTransfer(ctx context.Context, req qubic.TransferRequest) (string, error)
	GetTransaction(ctx context.Context, txID string) (qubic.Transaction, error)
}

// Config carries the engine's operational knobs.
type Config struct {
	// PollInterval is the cadence of reconcile passes.
	PollInterval time.Duration
	// LockTTL bounds how long a crashed replica can keep an escrow locked.
	LockTTL time.Duration
	// Treasury receives the platform share of settlement fees.
	Treasury string
	// VerifyPayouts makes the engine hold a winning bet until the gateway
	// confirms the sweep transfer, finishing at completed instead of swept.
	VerifyPayouts bool
}

// Engine reconciles bets against the ledger gateway.
type Engine struct {
	bets    domain.BetStore
	markets domain.MarketStore
	cache   domain.BetCache
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	gateway Gateway
	cfg     Config
	guard   *txGuard
	logger  *slog.Logger
}

// NewEngine wires a reconciliation engine. Zero config values fall back to
// the defaults.
func NewEngine(
	bets domain.BetStore,
	markets domain.MarketStore,
	cache domain.BetCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	gateway Gateway,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Engine{
		bets:    bets,
		markets: markets,
		cache:   cache,
		locks:   locks,
		bus:     bus,
		audit:   audit,
		gateway: gateway,
		cfg:     cfg,
		guard:   newTxGuard(submitRetryTTL),
		logger:  logger.With(slog.String("component", "escrow_engine")),
	}
}

// Run reconciles on the configured interval until the context is cancelled.
// The first pass runs immediately so a restart recovers without waiting out
// a full interval.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "escrow engine started",
		slog.Duration("poll_interval", e.cfg.PollInterval),
		slog.Bool("verify_payouts", e.cfg.VerifyPayouts))
	defer e.logger.Info("escrow engine stopped")

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(guardCleanupEvery)
	defer cleanup.Stop()

	if err := e.Reconcile(ctx); err != nil {
		e.logger.ErrorContext(ctx, "reconcile pass failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Reconcile(ctx); err != nil {
				e.logger.ErrorContext(ctx, "reconcile pass failed", slog.Any("error", err))
			}
		case <-cleanup.C:
			e.guard.cleanup()
		}
	}
}

// Reconcile runs a single pass: advance market phases, then walk the live
// bets market by market.
func (e *Engine) Reconcile(ctx context.Context) error {
	now := time.Now().UTC()
	if err := e.advanceMarketPhases(ctx, now); err != nil {
		return err
	}

	live, err := e.bets.ListLive(ctx)
	if err != nil {
		return fmt.Errorf("escrow: list live bets: %w", err)
	}

	byMarket := make(map[string][]domain.Bet)
	for _, b := range live {
		byMarket[b.MarketID] = append(byMarket[b.MarketID], b)
	}
	for marketID, bets := range byMarket {
		market, err := e.markets.GetByID(ctx, marketID)
		if err != nil {
			e.logger.WarnContext(ctx, "market lookup failed, bets skipped",
				slog.String("market_id", marketID), slog.Any("error", err))
			continue
		}
		e.reconcileMarket(ctx, market, bets, now)
	}
	return nil
}

// advanceMarketPhases closes markets whose betting window ended and moves
// closed markets past their end date into resolving, where they wait for
// the oracle.
func (e *Engine) advanceMarketPhases(ctx context.Context, now time.Time) error {
	ended, err := e.markets.ListEnded(ctx, now)
	if err != nil {
		return fmt.Errorf("escrow: list ended markets: %w", err)
	}
	for _, m := range ended {
		status := m.Status
		if status == domain.MarketStatusActive && !now.Before(m.CloseDate) {
			if e.setMarketStatus(ctx, m.ID, status, domain.MarketStatusClosed, "market_closed") {
				status = domain.MarketStatusClosed
			}
		}
		if status == domain.MarketStatusClosed && !now.Before(m.EndDate) {
			e.setMarketStatus(ctx, m.ID, status, domain.MarketStatusResolving, "market_resolving")
		}
	}
	return nil
}

func (e *Engine) setMarketStatus(ctx context.Context, marketID string, from, to domain.MarketStatus, event string) bool {
	if err := e.markets.SetStatus(ctx, marketID, from, to); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			e.logger.DebugContext(ctx, "market phase already advanced",
				slog.String("market_id", marketID), slog.String("to", string(to)))
		} else {
			e.logger.ErrorContext(ctx, "market phase transition failed",
				slog.String("market_id", marketID), slog.Any("error", err))
		}
		return false
	}
	payload, _ := json.Marshal(map[string]any{
		"event":    event,
		"marketId": marketID,
		"status":   string(to),
		"at":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := e.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil {
		e.logger.WarnContext(ctx, "market event publish failed",
			slog.String("market_id", marketID), slog.Any("error", err))
	}
	if err := e.audit.Log(ctx, event, map[string]any{
		"marketId": marketID,
		"from":     string(from),
		"to":       string(to),
		"actor":    "engine",
	}); err != nil {
		e.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event), slog.Any("error", err))
	}
	e.logger.InfoContext(ctx, "market phase advanced",
		slog.String("market_id", marketID),
		slog.String("from", string(from)), slog.String("to", string(to)))
	return true
}

// reconcileMarket applies the due transition to each of the market's live
// bets, then settles when the market has resolved and the pool is stable.
func (e *Engine) reconcileMarket(ctx context.Context, m domain.Market, bets []domain.Bet, now time.Time) {
	if m.Status == domain.MarketStatusCancelled {
		for _, b := range bets {
			if b.Status.IsTerminal() {
				continue
			}
			e.withEscrowLock(ctx, b.EscrowID, func(b domain.Bet) domain.Bet {
				return e.refundBet(ctx, b)
			}, &b)
		}
		return
	}

	for i := range bets {
		switch bets[i].Status {
		case domain.BetStatusAwaitingDeposit, domain.BetStatusDepositDetected, domain.BetStatusJoiningSC:
			e.withEscrowLock(ctx, bets[i].EscrowID, func(b domain.Bet) domain.Bet {
				return e.progressBet(ctx, m, b, now)
			}, &bets[i])
		}
	}

	if m.Status != domain.MarketStatusResolved {
		return
	}
	if !settlementReady(bets) {
		e.logger.DebugContext(ctx, "settlement deferred until pool is stable",
			slog.String("market_id", m.ID))
		return
	}
	// Progression above may have released slots; settle from a fresh pool.
	m, err := e.markets.GetByID(ctx, m.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "market refresh failed, settlement deferred",
			slog.String("market_id", m.ID), slog.Any("error", err))
		return
	}

	settled := true
	for i := range bets {
		switch bets[i].Status {
		case domain.BetStatusActiveInSC:
			e.withEscrowLock(ctx, bets[i].EscrowID, func(b domain.Bet) domain.Bet {
				return e.settleBet(ctx, m, b)
			}, &bets[i])
			if bets[i].Status == domain.BetStatusActiveInSC {
				settled = false
			}
		case domain.BetStatusWonAwaitingSweep:
			e.withEscrowLock(ctx, bets[i].EscrowID, func(b domain.Bet) domain.Bet {
				return e.sweepBet(ctx, b)
			}, &bets[i])
		}
	}
	if settled {
		e.sweepFees(ctx, m)
	}
}

// progressBet moves a pre-settlement bet one step forward.
func (e *Engine) progressBet(ctx context.Context, m domain.Market, b domain.Bet, now time.Time) domain.Bet {
	switch b.Status {
	case domain.BetStatusAwaitingDeposit:
		if now.After(b.ExpiresAt) {
			return e.expireBet(ctx, b)
		}
		return e.checkDeposit(ctx, b)
	case domain.BetStatusDepositDetected:
		return e.submitJoin(ctx, b)
	case domain.BetStatusJoiningSC:
		return e.confirmJoin(ctx, b)
	}
	return b
}

func (e *Engine) checkDeposit(ctx context.Context, b domain.Bet) domain.Bet {
	bal, err := e.gateway.GetBalance(ctx, b.EscrowAddress)
	if err != nil {
		// Fresh addresses have no ledger entry until the first transfer.
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.DebugContext(ctx, "balance check failed",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		}
		return b
	}
	if bal.BalanceQu < b.ExpectedAmountQu {
		if bal.BalanceQu > 0 {
			e.logger.DebugContext(ctx, "partial deposit",
				slog.String("bet_id", b.ID),
				slog.Int64("balance_qu", bal.BalanceQu),
				slog.Int64("expected_qu", b.ExpectedAmountQu))
		}
		return b
	}
	// Overpayments are recorded as deposited; the excess joins the stake's
	// escrow and is swept back with any payout.
	upd := domain.BetUpdate{DepositAmountQu: bal.BalanceQu, DepositTxID: bal.LatestInTxID}
	b, _ = e.advance(ctx, b, domain.BetStatusDepositDetected, upd, "deposit_detected", nil)
	return b
}

func (e *Engine) expireBet(ctx context.Context, b domain.Bet) domain.Bet {
	b, err := e.advance(ctx, b, domain.BetStatusExpired, domain.BetUpdate{}, "bet_expired", nil)
	if err == nil {
		e.releaseSlots(ctx, b)
	}
	return b
}

func (e *Engine) submitJoin(ctx context.Context, b domain.Bet) domain.Bet {
	if e.guard.busy(joinGuardKeyPrefix + b.EscrowID) {
		return b
	}
	txID, err := e.gateway.SubmitJoinBet(ctx, qubic.JoinBetRequest{
		EscrowID:      b.EscrowID,
		EscrowAddress: b.EscrowAddress,
		MarketID:      b.MarketID,
		Option:        b.Option,
		Slots:         b.Slots,
		AmountQu:      b.DepositAmountQu,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTxRejected) {
			return e.failBet(ctx, b, "join rejected", err)
		}
		e.logger.DebugContext(ctx, "join submit failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
		return b
	}
	b, _ = e.advance(ctx, b, domain.BetStatusJoiningSC, domain.BetUpdate{JoinBetTxID: txID}, "join_submitted", nil)
	return b
}

func (e *Engine) confirmJoin(ctx context.Context, b domain.Bet) domain.Bet {
	if b.JoinBetTxID == "" {
		e.logger.WarnContext(ctx, "joining bet has no transaction id", slog.String("bet_id", b.ID))
		return b
	}
	tx, err := e.gateway.GetTransaction(ctx, b.JoinBetTxID)
	if err != nil {
		e.logger.DebugContext(ctx, "join status check failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
		return b
	}
	switch tx.Status {
	case qubic.TxConfirmed:
		b, _ = e.advance(ctx, b, domain.BetStatusActiveInSC, domain.BetUpdate{}, "join_confirmed", nil)
	case qubic.TxRejected:
		return e.failBet(ctx, b, "join transaction rejected", errors.New(tx.Message))
	}
	return b
}

// settleBet decides a contract-active bet against the resolved market.
func (e *Engine) settleBet(ctx context.Context, m domain.Market, b domain.Bet) domain.Bet {
	if m.WinningOption == nil {
		e.logger.WarnContext(ctx, "resolved market has no winning option", slog.String("market_id", m.ID))
		return b
	}
	if b.Option != *m.WinningOption {
		b, _ = e.advance(ctx, b, domain.BetStatusLost, domain.BetUpdate{}, "bet_lost", nil)
		return b
	}
	bd := payout.Compute(m.TotalPoolQu(), m.OptionSlots(*m.WinningOption), m.TotalSlots(), m.OracleFeeBps)
	amount := bd.PayoutQu(b.Slots)
	b, _ = e.advance(ctx, b, domain.BetStatusWonAwaitingSweep,
		domain.BetUpdate{PayoutAmountQu: amount}, "bet_won", nil)
	return b
}

// sweepBet pays a winner out. Without delivery verification the bet ends at
// swept as soon as the transfer is accepted; with it, the bet holds at
// won_awaiting_sweep until the gateway confirms the transfer and then ends
// at completed. Submissions are idempotent, so re-running after a crash
// recovers the same transaction.
func (e *Engine) sweepBet(ctx context.Context, b domain.Bet) domain.Bet {
	if !e.cfg.VerifyPayouts && e.guard.busy(sweepRefPrefix+b.EscrowID) {
		return b
	}
	txID, err := e.gateway.SubmitTransfer(ctx, qubic.TransferRequest{
		FromAddress: b.EscrowAddress,
		ToAddress:   b.PayoutAddress,
		AmountQu:    b.PayoutAmountQu,
		Reference:   sweepRefPrefix + b.EscrowID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTxRejected):
			return e.failBet(ctx, b, "sweep rejected", err)
		case errors.Is(err, domain.ErrAlreadyExists):
			e.logger.WarnContext(ctx, "conflicting sweep reference",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		default:
			e.logger.DebugContext(ctx, "sweep submit failed",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		}
		return b
	}
	if !e.cfg.VerifyPayouts {
		b, _ = e.advance(ctx, b, domain.BetStatusSwept, domain.BetUpdate{SweepTxID: txID}, "bet_swept", nil)
		return b
	}
	tx, err := e.gateway.GetTransaction(ctx, txID)
	if err != nil {
		e.logger.DebugContext(ctx, "sweep status check failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
		return b
	}
	switch tx.Status {
	case qubic.TxConfirmed:
		b, _ = e.advance(ctx, b, domain.BetStatusCompleted, domain.BetUpdate{SweepTxID: txID}, "bet_completed", nil)
	case qubic.TxRejected:
		return e.failBet(ctx, b, "sweep transaction rejected", errors.New(tx.Message))
	}
	return b
}

// refundBet returns a cancelled market's deposit to the bettor. The refund
// transfer reuses the sweep column; it is the escrow's single outbound
// transaction either way.
func (e *Engine) refundBet(ctx context.Context, b domain.Bet) domain.Bet {
	if b.DepositAmountQu == 0 {
		b, _ = e.advance(ctx, b, domain.BetStatusRefunded, domain.BetUpdate{}, "bet_refunded", nil)
		return b
	}
	if e.guard.busy(refundRefPrefix + b.EscrowID) {
		return b
	}
	txID, err := e.gateway.SubmitTransfer(ctx, qubic.TransferRequest{
		FromAddress: b.EscrowAddress,
		ToAddress:   b.PayoutAddress,
		AmountQu:    b.DepositAmountQu,
		Reference:   refundRefPrefix + b.EscrowID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTxRejected) {
			return e.failBet(ctx, b, "refund rejected", err)
		}
		e.logger.DebugContext(ctx, "refund submit failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
		return b
	}
	b, _ = e.advance(ctx, b, domain.BetStatusRefunded, domain.BetUpdate{SweepTxID: txID}, "bet_refunded", nil)
	return b
}

// sweepFees moves the platform's share of the fee take to the treasury once
// a market is fully settled. The transfer reference makes resubmission after
// a restart return the original transaction.
func (e *Engine) sweepFees(ctx context.Context, m domain.Market) {
	if m.WinningOption == nil || e.cfg.Treasury == "" {
		return
	}
	bd := payout.Compute(m.TotalPoolQu(), m.OptionSlots(*m.WinningOption), m.TotalSlots(), m.OracleFeeBps)
	amount := bd.FeeSplit().PlatformQu.Floor().IntPart()
	if amount <= 0 {
		return
	}
	if e.guard.busy(feeSweepRefPrefix + m.ID) {
		return
	}
	txID, err := e.gateway.SubmitTransfer(ctx, qubic.TransferRequest{
		FromAddress: marketPoolPrefix + m.ID,
		ToAddress:   e.cfg.Treasury,
		AmountQu:    amount,
		Reference:   feeSweepRefPrefix + m.ID,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "fee sweep failed",
			slog.String("market_id", m.ID), slog.Any("error", err))
		return
	}
	if err := e.audit.Log(ctx, "fees_swept", map[string]any{
		"marketId": m.ID,
		"amountQu": amount,
		"treasury": e.cfg.Treasury,
		"txId":     txID,
		"actor":    "engine",
	}); err != nil {
		e.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", "fees_swept"), slog.Any("error", err))
	}
	e.logger.InfoContext(ctx, "platform fees swept",
		slog.String("market_id", m.ID), slog.Int64("amount_qu", amount))
}

func (e *Engine) failBet(ctx context.Context, b domain.Bet, reason string, cause error) domain.Bet {
	e.logger.WarnContext(ctx, "bet failed",
		slog.String("bet_id", b.ID),
		slog.String("reason", reason),
		slog.Any("error", cause))
	// Slots return to the pool only when the stake never reached the
	// contract; a post-join failure leaves the pool untouched for the bets
	// already settled against it.
	releasable := b.Status.Rank() < domain.BetStatusActiveInSC.Rank()
	b, err := e.advance(ctx, b, domain.BetStatusFailed, domain.BetUpdate{},
		"bet_failed", map[string]any{"reason": reason})
	if err == nil && releasable {
		e.releaseSlots(ctx, b)
	}
	return b
}

// ----- Internal helpers -----

// withEscrowLock runs fn on *b under the escrow's distributed lock, skipping
// the bet entirely when another replica holds it.
func (e *Engine) withEscrowLock(ctx context.Context, escrowID string, fn func(domain.Bet) domain.Bet, b *domain.Bet) {
	unlock, err := e.locks.Acquire(ctx, escrowLockPrefix+escrowID, e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.DebugContext(ctx, "escrow locked elsewhere", slog.String("escrow_id", escrowID))
		} else {
			e.logger.WarnContext(ctx, "escrow lock failed",
				slog.String("escrow_id", escrowID), slog.Any("error", err))
		}
		return
	}
	defer unlock()
	*b = fn(*b)
}

// advance persists a status transition and carries out the bookkeeping every
// transition shares: cache refresh, bus event, settlement stream append, and
// audit row. It returns the bet as written, or the input unchanged with the
// store's error.
func (e *Engine) advance(ctx context.Context, b domain.Bet, to domain.BetStatus, upd domain.BetUpdate, event string, extra map[string]any) (domain.Bet, error) {
	from := b.Status
	if err := e.bets.Advance(ctx, b.ID, from, to, upd); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			e.logger.DebugContext(ctx, "transition lost to a newer write",
				slog.String("bet_id", b.ID),
				slog.String("from", string(from)), slog.String("to", string(to)))
		} else {
			e.logger.ErrorContext(ctx, "bet transition failed",
				slog.String("bet_id", b.ID),
				slog.String("to", string(to)), slog.Any("error", err))
		}
		return b, err
	}

	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	if upd.DepositAmountQu != 0 {
		b.DepositAmountQu = upd.DepositAmountQu
	}
	if upd.DepositTxID != "" {
		b.DepositTxID = upd.DepositTxID
	}
	if upd.JoinBetTxID != "" {
		b.JoinBetTxID = upd.JoinBetTxID
	}
	if upd.PayoutAmountQu != 0 {
		b.PayoutAmountQu = upd.PayoutAmountQu
	}
	if upd.SweepTxID != "" {
		b.SweepTxID = upd.SweepTxID
	}

	if to.IsTerminal() {
		if err := e.cache.Invalidate(ctx, b.ID); err != nil {
			e.logger.WarnContext(ctx, "bet cache invalidate failed",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		}
	} else {
		if err := e.cache.Set(ctx, b); err != nil {
			e.logger.WarnContext(ctx, "bet cache write failed",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		}
	}

	evt := domain.EscrowEvent{
		Event:          event,
		BetID:          b.ID,
		EscrowID:       b.EscrowID,
		MarketID:       b.MarketID,
		From:           from,
		To:             to,
		TxID:           transitionTxID(upd),
		PayoutAmountQu: upd.PayoutAmountQu,
		At:             b.UpdatedAt,
	}
	payload, _ := json.Marshal(evt)
	if err := e.bus.Publish(ctx, domain.ChannelEscrow+"."+b.ID, payload); err != nil {
		e.logger.WarnContext(ctx, "escrow event publish failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
	}
	if isSettlementOutcome(to) {
		if err := e.bus.StreamAppend(ctx, domain.StreamSettlements, payload); err != nil {
			e.logger.WarnContext(ctx, "settlement stream append failed",
				slog.String("bet_id", b.ID), slog.Any("error", err))
		}
	}

	detail := map[string]any{
		"betId":    b.ID,
		"escrowId": b.EscrowID,
		"marketId": b.MarketID,
		"from":     string(from),
		"to":       string(to),
		"actor":    "engine",
	}
	if txID := transitionTxID(upd); txID != "" {
		detail["txId"] = txID
	}
	if upd.PayoutAmountQu != 0 {
		detail["payoutAmountQu"] = upd.PayoutAmountQu
	}
	for k, v := range extra {
		detail[k] = v
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event), slog.Any("error", err))
	}

	e.logger.InfoContext(ctx, "bet advanced",
		slog.String("bet_id", b.ID),
		slog.String("from", string(from)), slog.String("to", string(to)))
	return b, nil
}

// releaseSlots gives a dead bet's slots back to the market's option pool.
// Best effort: the bet is already terminal, a failed release only skews the
// published pool size.
func (e *Engine) releaseSlots(ctx context.Context, b domain.Bet) {
	m, err := e.markets.GetByID(ctx, b.MarketID)
	if err != nil {
		e.logger.WarnContext(ctx, "slot release failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
		return
	}
	if err := e.markets.AddSlots(ctx, b.MarketID, b.Option, -b.Slots, m.MaxSlotsPerOption); err != nil {
		e.logger.WarnContext(ctx, "slot release failed",
			slog.String("bet_id", b.ID), slog.Any("error", err))
	}
}

// settlementReady reports whether payouts can be computed: every live bet
// must have reached the contract or died, otherwise a pending join or
// expiry would shift the pool under bets already settled.
func settlementReady(bets []domain.Bet) bool {
	for _, b := range bets {
		if b.Status.IsTerminal() {
			continue
		}
		if b.Status.Rank() < domain.BetStatusActiveInSC.Rank() {
			return false
		}
	}
	return true
}

// isSettlementOutcome reports whether a transition lands on the durable
// settlement stream. Deposit and join progress stay on pub/sub only.
func isSettlementOutcome(s domain.BetStatus) bool {
	switch s {
	case domain.BetStatusWonAwaitingSweep, domain.BetStatusLost,
		domain.BetStatusSwept, domain.BetStatusCompleted,
		domain.BetStatusExpired, domain.BetStatusRefunded, domain.BetStatusFailed:
		return true
	}
	return false
}

func transitionTxID(upd domain.BetUpdate) string {
	switch {
	case upd.DepositTxID != "":
		return upd.DepositTxID
	case upd.JoinBetTxID != "":
		return upd.JoinBetTxID
	case upd.SweepTxID != "":
		return upd.SweepTxID
	}
	return ""
}
