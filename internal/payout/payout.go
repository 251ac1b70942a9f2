// Package payout implements the pool-split arithmetic for market settlement
// and flash rounds. All intermediate values are decimals; qu amounts leave
// the package only after an explicit floor.
package payout

import (
	"github.com/shopspring/decimal"
)

// baseFeeRate is the fixed 12.5% levied on the losing pool, split between
// the platform, the token burn and shareholders.
var baseFeeRate = decimal.New(125, -3)

// Fixed fee split in basis points. The three parts sum to the 12.5% base
// rate; the oracle fee comes on top per market.
const (
	PlatformFeeBps    = 500
	ShareholderFeeBps = 500
	BurnFeeBps        = 250
)

// FeeRate returns the total fee rate applied to the losing pool:
// the 12.5% base plus the market's oracle fee.
func FeeRate(oracleFeeBps int64) decimal.Decimal {
	return baseFeeRate.Add(decimal.New(oracleFeeBps, -4))
}

// Breakdown is the fee-adjusted split of a market pool between the winning
// and losing sides. Fees are levied only on the losing side's share, so the
// winner pool can never drop below the winners' own stake.
type Breakdown struct {
	TotalPoolQu  decimal.Decimal
	WinnerSlots  int64
	TotalSlots   int64
	OracleFeeBps int64

	WinnerStake decimal.Decimal // share of the pool attributable to winning slots
	LoserPool   decimal.Decimal
	FeeRate     decimal.Decimal
	TotalFees   decimal.Decimal
	WinnerPool  decimal.Decimal
}

// Compute splits totalPoolQu between winnerSlots and the rest. With no
// opposing slots the loser pool is zero, no fee applies, and the winner pool
// collapses to exactly the winners' own stake; that refund case falls out of
// the arithmetic rather than a branch.
func Compute(totalPoolQu, winnerSlots, totalSlots, oracleFeeBps int64) Breakdown {
	b := Breakdown{
		TotalPoolQu:  decimal.NewFromInt(totalPoolQu),
		WinnerSlots:  winnerSlots,
		TotalSlots:   totalSlots,
		OracleFeeBps: oracleFeeBps,
		FeeRate:      FeeRate(oracleFeeBps),
	}
	if totalSlots <= 0 {
		return b
	}

	b.WinnerStake = b.TotalPoolQu.
		Mul(decimal.NewFromInt(winnerSlots)).
		Div(decimal.NewFromInt(totalSlots))
	b.LoserPool = b.TotalPoolQu.Sub(b.WinnerStake)
	b.TotalFees = b.LoserPool.Mul(b.FeeRate)
	b.WinnerPool = b.WinnerStake.Add(b.LoserPool).Sub(b.TotalFees)
	return b
}

// PerSlot returns the winner pool divided across winning slots, 0 when no
// winning slots exist. This is a display value; settlement goes through
// PayoutQu so non-terminating divisions cannot leak rounding drift.
func (b Breakdown) PerSlot() decimal.Decimal {
	if b.WinnerSlots <= 0 {
		return decimal.Zero
	}
	return b.WinnerPool.Div(decimal.NewFromInt(b.WinnerSlots))
}

// PayoutQu returns the floored payout for a wager of slotsWagered winning
// slots. The multiplication happens before the single division, so a full
// claim of all winning slots returns the whole winner pool exactly.
func (b Breakdown) PayoutQu(slotsWagered int64) int64 {
	if b.WinnerSlots <= 0 || slotsWagered <= 0 {
		return 0
	}
	return b.WinnerPool.
		Mul(decimal.NewFromInt(slotsWagered)).
		Div(decimal.NewFromInt(b.WinnerSlots)).
		Floor().
		IntPart()
}

// FeeSplit is the destination split of the fees taken from the losing pool.
type FeeSplit struct {
	PlatformQu    decimal.Decimal
	ShareholderQu decimal.Decimal
	BurnQu        decimal.Decimal
	OracleQu      decimal.Decimal
}

// FeeSplit divides TotalFees across its destinations. The parts sum to
// TotalFees exactly because every rate is an exact decimal.
func (b Breakdown) FeeSplit() FeeSplit {
	return FeeSplit{
		PlatformQu:    b.LoserPool.Mul(decimal.New(PlatformFeeBps, -4)),
		ShareholderQu: b.LoserPool.Mul(decimal.New(ShareholderFeeBps, -4)),
		BurnQu:        b.LoserPool.Mul(decimal.New(BurnFeeBps, -4)),
		OracleQu:      b.LoserPool.Mul(decimal.New(b.OracleFeeBps, -4)),
	}
}

// ImpliedProbability returns optionSlots/totalSlots, the market-implied
// chance of an option, 0 when the market is empty.
func ImpliedProbability(optionSlots, totalSlots int64) decimal.Decimal {
	if totalSlots <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(optionSlots).Div(decimal.NewFromInt(totalSlots))
}
