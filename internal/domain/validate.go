package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Address format limits for the target ledger. An address is exactly 60
// uppercase ASCII letters; digits, lowercase and any other byte are rejected
// outright rather than warned about.
const AddressLength = 60

const (
	QuestionMinLen = 10
	QuestionMaxLen = 100

	MinBetFloorQu = 100

	SlotsCapMin = 2
	SlotsCapMax = 15000
)

// ValidAddress reports whether addr is exactly 60 uppercase A-Z characters.
func ValidAddress(addr string) bool {
	if len(addr) != AddressLength {
		return false
	}
	for i := 0; i < len(addr); i++ {
		if addr[i] < 'A' || addr[i] > 'Z' {
			return false
		}
	}
	return true
}

// MarketDraft is the creation payload for a market, validated before any
// persistence or gateway interaction.
type MarketDraft struct {
	Question          string
	Description       string
	Type              MarketType
	OptionLabels      []string
	MinBetQu          int64
	MaxSlotsPerOption int64
	OracleFeeBps      int64
	ResolutionTarget  float64
	ResolutionLow     float64
	ResolutionHigh    float64
	CreatorAddress    string
	CloseDate         time.Time
	EndDate           time.Time
}

// Validate checks every creation rule and returns the problems keyed by
// field. now anchors the date checks.
func (d MarketDraft) Validate(now time.Time) FieldErrors {
	fe := FieldErrors{}

	if n := utf8.RuneCountInString(d.Question); n < QuestionMinLen || n > QuestionMaxLen {
		fe.Add("question", fmt.Sprintf("must be %d-%d characters", QuestionMinLen, QuestionMaxLen))
	}

	switch d.Type {
	case MarketTypeBasic:
		if len(d.OptionLabels) < 2 {
			fe.Add("options", "at least two options required")
		}
	case MarketTypePrice:
		if d.ResolutionTarget <= 0 {
			fe.Add("resolutionTarget", "must be a positive number")
		}
	case MarketTypeRange:
		if d.ResolutionLow <= 0 {
			fe.Add("resolutionLow", "must be a positive number")
		}
		if d.ResolutionHigh <= d.ResolutionLow {
			fe.Add("resolutionHigh", "must be strictly greater than the low target")
		}
	default:
		fe.Add("type", "unknown market type")
	}

	if !d.CloseDate.After(now) {
		fe.Add("closeDate", "must be in the future")
	}
	if !d.EndDate.After(d.CloseDate) {
		fe.Add("endDate", "must be strictly after the close date")
	}

	if d.MinBetQu < MinBetFloorQu {
		fe.Add("minBet", fmt.Sprintf("must be at least %d qus", MinBetFloorQu))
	}
	if d.MaxSlotsPerOption < SlotsCapMin || d.MaxSlotsPerOption > SlotsCapMax {
		fe.Add("maxSlotsPerOption", fmt.Sprintf("must be between %d and %d", SlotsCapMin, SlotsCapMax))
	}
	// 8750 bps on top of the fixed 12.5% is a 100% fee rate on the loser
	// pool; anything above would pay winners less than their own stake.
	if d.OracleFeeBps < 0 || d.OracleFeeBps > 8750 {
		fe.Add("oracleFeeBps", "must be between 0 and 8750")
	}

	if !ValidAddress(d.CreatorAddress) {
		fe.Add("creatorAddress", fmt.Sprintf("must be exactly %d uppercase letters", AddressLength))
	}

	return fe
}

// BetRequest is the placement payload for a bet.
type BetRequest struct {
	MarketID      string
	PayoutAddress string
	Option        int
	Slots         int64
}

// Validate checks the market-independent placement rules. Option and slot
// caps against the live market are enforced at placement time.
func (r BetRequest) Validate() FieldErrors {
	fe := FieldErrors{}
	if r.MarketID == "" {
		fe.Add("marketId", "required")
	}
	if !ValidAddress(r.PayoutAddress) {
		fe.Add("payoutAddress", fmt.Sprintf("must be exactly %d uppercase letters", AddressLength))
	}
	if r.Option < 0 {
		fe.Add("option", "must not be negative")
	}
	if r.Slots < 1 {
		fe.Add("slots", "must be at least 1")
	}
	return fe
}

// WagerRequest is the placement payload for a flash wager.
type WagerRequest struct {
	RoundID       string
	PayoutAddress string
	Side          FlashSide
	AmountQu      int64
}

// Validate checks the round-independent wager rules.
func (r WagerRequest) Validate() FieldErrors {
	fe := FieldErrors{}
	if r.RoundID == "" {
		fe.Add("roundId", "required")
	}
	if !ValidAddress(r.PayoutAddress) {
		fe.Add("payoutAddress", fmt.Sprintf("must be exactly %d uppercase letters", AddressLength))
	}
	if r.Side != FlashSideUp && r.Side != FlashSideDown {
		fe.Add("side", `must be "up" or "down"`)
	}
	if r.AmountQu < 1 {
		fe.Add("amount", "must be at least 1 qu")
	}
	return fe
}
