package payout

import (
	"github.com/shopspring/decimal"

	"github.com/qupredict/qupredict/internal/domain"
)

// flashFeeRate is the fixed 3% fee on the opposing pool in flash rounds.
var flashFeeRate = decimal.New(3, -2)

// Multiplier returns the flash payout multiplier for a side:
// 1 + opposingPool × (1 − fee) / ownPool. Pools are after-wager totals, so
// ownPool always contains at least the wager being quoted; an empty own pool
// quotes 1 (stake back).
func Multiplier(ownPoolQu, opposingPoolQu int64) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if ownPoolQu <= 0 {
		return one
	}
	bonus := decimal.NewFromInt(opposingPoolQu).
		Mul(one.Sub(flashFeeRate)).
		Div(decimal.NewFromInt(ownPoolQu))
	return one.Add(bonus)
}

// SettleWager returns the qu payout for a flash wager once the round outcome
// is known: wager × multiplier when the side matches the outcome, the full
// wager back on a push, zero otherwise.
func SettleWager(amountQu int64, side domain.FlashSide, outcome domain.RoundOutcome, ownPoolQu, opposingPoolQu int64) int64 {
	switch {
	case outcome == domain.RoundOutcomePush:
		return amountQu
	case string(side) == string(outcome):
		return decimal.NewFromInt(amountQu).
			Mul(Multiplier(ownPoolQu, opposingPoolQu)).
			Floor().
			IntPart()
	default:
		return 0
	}
}
