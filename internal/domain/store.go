package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets and their option pools.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	Count(ctx context.Context, status MarketStatus) (int64, error)
	// SetStatus moves a market from one status to another, failing with
	// ErrStaleTransition when the stored status no longer matches from.
	SetStatus(ctx context.Context, id string, from, to MarketStatus) error
	// Resolve marks the market resolved and records the winning option.
	Resolve(ctx context.Context, id string, winningOption int) error
	// AddSlots atomically adjusts one option's slot count by delta. The
	// update is refused (ErrInvalidBet) when it would push the count above
	// cap or below zero.
	AddSlots(ctx context.Context, marketID string, option int, delta, cap int64) error
	// ListEnded returns non-terminal markets whose betting close date has
	// passed. Callers compare CloseDate and EndDate against now to decide
	// which phase transition each market is due for.
	ListEnded(ctx context.Context, now time.Time) ([]Market, error)
}

// BetStore persists bets and their escrow state.
type BetStore interface {
	Create(ctx context.Context, bet Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	GetByEscrowID(ctx context.Context, escrowID string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Bet, error)
	ListByAddress(ctx context.Context, payoutAddress string, opts ListOpts) ([]Bet, error)
	// ListLive returns every bet whose status is not terminal, oldest first.
	ListLive(ctx context.Context) ([]Bet, error)
	// ListSettledBefore returns terminal bets last updated before the cutoff.
	ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]Bet, error)
	// Advance moves a bet from one status to the next and applies upd in the
	// same write. It fails with ErrStaleTransition when the stored status no
	// longer matches from, so a slow writer can never regress a bet.
	Advance(ctx context.Context, id string, from, to BetStatus, upd BetUpdate) error
}

// RoundStore persists flash rounds.
type RoundStore interface {
	Create(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id string) (Round, error)
	// Latest returns the most recently created round for the pair.
	Latest(ctx context.Context, pair string) (Round, error)
	List(ctx context.Context, pair string, opts ListOpts) ([]Round, error)
	SetStatus(ctx context.Context, id string, from, to RoundStatus) error
	// Resolve records the closing price and outcome and marks the round resolved.
	Resolve(ctx context.Context, id string, closePrice float64, outcome RoundOutcome) error
	// AddToPool atomically adds amountQu to one side's pool.
	AddToPool(ctx context.Context, id string, side FlashSide, amountQu int64) error
	// ListResolvedBefore returns resolved rounds last updated before the cutoff.
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Round, error)
}

// WagerStore persists flash wagers.
type WagerStore interface {
	Create(ctx context.Context, wager FlashWager) error
	GetByID(ctx context.Context, id string) (FlashWager, error)
	ListByRound(ctx context.Context, roundID string, opts ListOpts) ([]FlashWager, error)
	ListPending(ctx context.Context, roundID string) ([]FlashWager, error)
	// Settle records the outcome and payout for a pending wager.
	Settle(ctx context.Context, id string, status WagerStatus, payoutQu int64) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	// DeleteBefore prunes entries older than the cutoff, returning the count.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
