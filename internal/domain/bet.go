package domain

import "time"

// BetStatus tracks the escrow lifecycle of a bet. The happy path runs
//
//	awaiting_deposit → deposit_detected → joining_sc → active_in_sc
//	    → won_awaiting_sweep → swept | completed
//
// with lost as the losing branch out of active_in_sc, and expired, refunded
// and failed reachable from any non-terminal state.
type BetStatus string

const (
	BetStatusAwaitingDeposit  BetStatus = "awaiting_deposit"
	BetStatusDepositDetected  BetStatus = "deposit_detected"
	BetStatusJoiningSC        BetStatus = "joining_sc"
	BetStatusActiveInSC       BetStatus = "active_in_sc"
	BetStatusWonAwaitingSweep BetStatus = "won_awaiting_sweep"
	BetStatusLost             BetStatus = "lost"
	BetStatusSwept            BetStatus = "swept"
	BetStatusCompleted        BetStatus = "completed"
	BetStatusExpired          BetStatus = "expired"
	BetStatusRefunded         BetStatus = "refunded"
	BetStatusFailed           BetStatus = "failed"
)

// betRank orders bet statuses along the forward lifecycle. States sharing a
// rank are alternatives at the same stage and never replace each other; the
// out-of-band terminals rank above everything so they stay reachable from
// any live state.
var betRank = map[BetStatus]int{
	BetStatusAwaitingDeposit:  1,
	BetStatusDepositDetected:  2,
	BetStatusJoiningSC:        3,
	BetStatusActiveInSC:       4,
	BetStatusWonAwaitingSweep: 5,
	BetStatusLost:             5,
	BetStatusSwept:            6,
	BetStatusCompleted:        6,
	BetStatusExpired:          7,
	BetStatusRefunded:         7,
	BetStatusFailed:           7,
}

// betTerminal is the set of statuses from which no transition is possible.
var betTerminal = map[BetStatus]bool{
	BetStatusLost:      true,
	BetStatusSwept:     true,
	BetStatusCompleted: true,
	BetStatusExpired:   true,
	BetStatusRefunded:  true,
	BetStatusFailed:    true,
}

// Rank returns the position of the status along the lifecycle. Unknown
// statuses rank 0 so they never replace a known one.
func (s BetStatus) Rank() int {
	return betRank[s]
}

// Known reports whether s is one of the lifecycle statuses.
func (s BetStatus) Known() bool {
	_, ok := betRank[s]
	return ok
}

// IsTerminal reports whether the status ends the lifecycle. Pollers must
// stop once a terminal status has been observed.
func (s BetStatus) IsTerminal() bool {
	return betTerminal[s]
}

// IsWin reports whether the status represents a winning outcome.
func (s BetStatus) IsWin() bool {
	return s == BetStatusWonAwaitingSweep || s == BetStatusSwept || s == BetStatusCompleted
}

// CanTransition reports whether a bet may move from s to next. Transitions
// only ever move forward: a terminal status admits nothing, and next must
// rank strictly above s.
func (s BetStatus) CanTransition(next BetStatus) bool {
	if s.IsTerminal() || !next.Known() {
		return false
	}
	return next.Rank() > s.Rank()
}

// Bet is one user's wager together with its escrow. The deposit address is
// generated once per escrow; the expected amount is Slots × the market's
// MinBetQu. Authoritative status lives server side and only ever advances.
type Bet struct {
	ID               string // wager identity, used by status polling
	EscrowID         string // custody identity, used by cancel and address derivation
	MarketID         string
	Option           int
	Slots            int64
	PayoutAddress    string
	EscrowAddress    string // one-time deposit address
	ExpectedAmountQu int64
	DepositAmountQu  int64  // 0 until a deposit is detected
	DepositTxID      string // "" until a deposit is detected
	JoinBetTxID      string // "" until the join is submitted
	PayoutAmountQu   int64  // 0 unless the bet won
	SweepTxID        string // "" until the sweep is submitted
	Status           BetStatus
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CostQu returns the deposit a wager of slots requires at minBetQu per slot.
func CostQu(slots, minBetQu int64) int64 {
	return slots * minBetQu
}

// BetUpdate carries the fields a status transition may set alongside the new
// status. Zero values leave the stored column untouched.
type BetUpdate struct {
	DepositAmountQu int64
	DepositTxID     string
	JoinBetTxID     string
	PayoutAmountQu  int64
	SweepTxID       string
}
