package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusDraft     MarketStatus = "draft"
	MarketStatusActive    MarketStatus = "active"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusResolving MarketStatus = "resolving"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// marketRank orders market statuses along the forward lifecycle. Cancelled
// shares the final rank with resolved so neither can replace the other.
var marketRank = map[MarketStatus]int{
	MarketStatusDraft:     0,
	MarketStatusActive:    1,
	MarketStatusClosed:    2,
	MarketStatusResolving: 3,
	MarketStatusResolved:  4,
	MarketStatusCancelled: 4,
}

// Rank returns the position of the status along the lifecycle. Unknown
// statuses rank below draft.
func (s MarketStatus) Rank() int {
	if r, ok := marketRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s MarketStatus) IsTerminal() bool {
	return s == MarketStatusResolved || s == MarketStatusCancelled
}

// CanTransition reports whether a market may move from s to next. Forward
// moves only; cancellation is allowed from any state before resolution.
func (s MarketStatus) CanTransition(next MarketStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.Rank() > s.Rank()
}

// MarketType selects how a market resolves.
type MarketType string

const (
	MarketTypeBasic MarketType = "basic" // resolved by the oracle naming a winning option
	MarketTypePrice MarketType = "price" // resolved against a single price target
	MarketTypeRange MarketType = "range" // resolved against a low/high bracket
)

// MarketOption is one side of a market with its accumulated slot count.
type MarketOption struct {
	Index int
	Label string
	Slots int64
}

// Market is a wagering proposition with two or more options. Each bet
// reserves a whole number of slots on one option; one slot costs MinBetQu.
type Market struct {
	ID                string
	Question          string
	Description       string
	Type              MarketType
	Options           []MarketOption
	MinBetQu          int64
	MaxSlotsPerOption int64
	OracleFeeBps      int64
	ResolutionTarget  float64 // price markets
	ResolutionLow     float64 // range markets
	ResolutionHigh    float64 // range markets
	CreatorAddress    string
	CloseDate         time.Time // betting cutoff
	EndDate           time.Time // resolution time
	Status            MarketStatus
	WinningOption     *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TotalSlots returns the slot count summed across all options.
func (m Market) TotalSlots() int64 {
	var total int64
	for _, opt := range m.Options {
		total += opt.Slots
	}
	return total
}

// TotalPoolQu returns the combined pool in qus: every reserved slot
// contributes MinBetQu.
func (m Market) TotalPoolQu() int64 {
	return m.TotalSlots() * m.MinBetQu
}

// OptionSlots returns the slot count for one option, 0 for an unknown index.
func (m Market) OptionSlots(index int) int64 {
	for _, opt := range m.Options {
		if opt.Index == index {
			return opt.Slots
		}
	}
	return 0
}

// AcceptsBets reports whether a bet may be placed at the given instant:
// the market must be active and the close date not yet reached.
func (m Market) AcceptsBets(now time.Time) bool {
	return m.Status == MarketStatusActive && now.Before(m.CloseDate)
}
