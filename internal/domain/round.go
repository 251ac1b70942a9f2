package domain

import "time"

// RoundStatus represents the lifecycle state of a flash round.
type RoundStatus string

const (
	RoundStatusUpcoming  RoundStatus = "upcoming"
	RoundStatusOpen      RoundStatus = "open"
	RoundStatusLocked    RoundStatus = "locked"
	RoundStatusResolving RoundStatus = "resolving"
	RoundStatusResolved  RoundStatus = "resolved"
	RoundStatusCancelled RoundStatus = "cancelled"
)

var roundRank = map[RoundStatus]int{
	RoundStatusUpcoming:  0,
	RoundStatusOpen:      1,
	RoundStatusLocked:    2,
	RoundStatusResolving: 3,
	RoundStatusResolved:  4,
	RoundStatusCancelled: 4,
}

// Rank returns the position of the status along the round lifecycle.
func (s RoundStatus) Rank() int {
	if r, ok := roundRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether the round has finished.
func (s RoundStatus) IsTerminal() bool {
	return s == RoundStatusResolved || s == RoundStatusCancelled
}

// CanTransition reports whether a round may move from s to next.
func (s RoundStatus) CanTransition(next RoundStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.Rank() > s.Rank()
}

// FlashSide is the direction of a flash wager.
type FlashSide string

const (
	FlashSideUp   FlashSide = "up"
	FlashSideDown FlashSide = "down"
)

// RoundOutcome is the resolution of a flash round. A push means the closing
// price equalled the opening price; every wager is refunded in full.
type RoundOutcome string

const (
	RoundOutcomeUp   RoundOutcome = "up"
	RoundOutcomeDown RoundOutcome = "down"
	RoundOutcomePush RoundOutcome = "push"
)

// Round is a fixed-duration binary contest on a price pair. Wagers join a
// side pool while the round is open; at close the closing price against the
// opening price decides the outcome.
type Round struct {
	ID         string
	Pair       string // e.g. "QU/USDT"
	OpenPrice  float64
	ClosePrice float64
	OpensAt    time.Time
	LocksAt    time.Time // wager cutoff
	ClosesAt   time.Time // resolution time
	Outcome    RoundOutcome
	UpPoolQu   int64
	DownPoolQu int64
	Status     RoundStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AcceptsWagers reports whether a wager may join at the given instant.
func (r Round) AcceptsWagers(now time.Time) bool {
	return r.Status == RoundStatusOpen && now.Before(r.LocksAt)
}

// Pool returns the qu total on one side of the round.
func (r Round) Pool(side FlashSide) int64 {
	if side == FlashSideUp {
		return r.UpPoolQu
	}
	return r.DownPoolQu
}

// OpposingPool returns the qu total on the other side.
func (r Round) OpposingPool(side FlashSide) int64 {
	if side == FlashSideUp {
		return r.DownPoolQu
	}
	return r.UpPoolQu
}

// WagerStatus tracks a flash wager from placement to settlement.
type WagerStatus string

const (
	WagerStatusPending  WagerStatus = "pending"
	WagerStatusWon      WagerStatus = "won"
	WagerStatusLost     WagerStatus = "lost"
	WagerStatusRefunded WagerStatus = "refunded"
)

// IsSettled reports whether the wager has reached an outcome.
func (s WagerStatus) IsSettled() bool {
	return s == WagerStatusWon || s == WagerStatusLost || s == WagerStatusRefunded
}

// FlashWager is a single up/down wager within one round.
type FlashWager struct {
	ID            string
	RoundID       string
	PayoutAddress string
	Side          FlashSide
	AmountQu      int64
	PayoutQu      int64 // set at settlement
	Status        WagerStatus
	CreatedAt     time.Time
	SettledAt     *time.Time
}
