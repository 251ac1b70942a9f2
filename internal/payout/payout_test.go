package payout

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Worked example: 1100 qu pool, 10 winning slots of 11 total (one opposing
// slot), no oracle fee.
func TestCompute_WorkedExample(t *testing.T) {
	b := Compute(1100, 10, 11, 0)

	assert.True(t, b.WinnerStake.Equal(dec("1000")), "winnerStake = %s", b.WinnerStake)
	assert.True(t, b.LoserPool.Equal(dec("100")), "loserPool = %s", b.LoserPool)
	assert.True(t, b.FeeRate.Equal(dec("0.125")), "feeRate = %s", b.FeeRate)
	assert.True(t, b.TotalFees.Equal(dec("12.5")), "totalFees = %s", b.TotalFees)
	assert.True(t, b.WinnerPool.Equal(dec("1087.5")), "winnerPool = %s", b.WinnerPool)
	assert.True(t, b.PerSlot().Equal(dec("108.75")), "perSlot = %s", b.PerSlot())
}

func TestCompute_PayoutFloorsPerWager(t *testing.T) {
	b := Compute(1100, 10, 11, 0)

	// floor(108.75 × slots)
	assert.Equal(t, int64(108), b.PayoutQu(1))
	assert.Equal(t, int64(217), b.PayoutQu(2))
	assert.Equal(t, int64(543), b.PayoutQu(5))
	assert.Equal(t, int64(1087), b.PayoutQu(10))
}

func TestCompute_OracleFeeRaisesRate(t *testing.T) {
	// 200 bps oracle fee on top of the 12.5% base.
	b := Compute(1100, 10, 11, 200)

	assert.True(t, b.FeeRate.Equal(dec("0.145")), "feeRate = %s", b.FeeRate)
	assert.True(t, b.TotalFees.Equal(dec("14.5")), "totalFees = %s", b.TotalFees)
	assert.True(t, b.WinnerPool.Equal(dec("1085.5")), "winnerPool = %s", b.WinnerPool)
}

// With no opposing slots the formula must collapse to a full refund without
// any special casing: loserPool = 0 ⇒ fees = 0 ⇒ winnerPool = winnerStake.
func TestCompute_FullRefundIdentity(t *testing.T) {
	cases := []struct {
		pool  int64
		slots int64
	}{
		{1000, 10},
		{1000, 3},  // non-divisible per-slot value
		{99999, 7},
		{50000, 1},
		{123456789, 337},
	}
	for _, tc := range cases {
		b := Compute(tc.pool, tc.slots, tc.slots, 425)

		assert.True(t, b.LoserPool.IsZero(), "pool=%d slots=%d loserPool = %s", tc.pool, tc.slots, b.LoserPool)
		assert.True(t, b.TotalFees.IsZero(), "pool=%d slots=%d totalFees = %s", tc.pool, tc.slots, b.TotalFees)
		assert.True(t, b.WinnerPool.Equal(b.WinnerStake), "pool=%d slots=%d winnerPool = %s", tc.pool, tc.slots, b.WinnerPool)

		// Claiming every winning slot returns the entire pool, exactly.
		assert.Equal(t, tc.pool, b.PayoutQu(tc.slots), "pool=%d slots=%d", tc.pool, tc.slots)
	}
}

// Fees never reduce winners below their own stake, and the winner pool never
// exceeds the total pool.
func TestCompute_WinnerPoolBounds(t *testing.T) {
	pools := []int64{100, 1100, 10007, 999999}
	feeBps := []int64{0, 1, 425, 8750}
	for _, pool := range pools {
		for _, bps := range feeBps {
			for winner := int64(1); winner <= 13; winner += 3 {
				total := winner + 9
				b := Compute(pool, winner, total, bps)

				label := fmt.Sprintf("pool=%d winner=%d total=%d bps=%d", pool, winner, total, bps)
				assert.True(t, b.WinnerPool.LessThanOrEqual(b.TotalPoolQu), "%s winnerPool = %s", label, b.WinnerPool)
				assert.True(t, b.WinnerPool.GreaterThanOrEqual(b.WinnerStake), "%s winnerPool = %s stake = %s", label, b.WinnerPool, b.WinnerStake)
			}
		}
	}
}

func TestCompute_NoWinningSlots(t *testing.T) {
	b := Compute(1100, 0, 11, 0)

	assert.True(t, b.PerSlot().IsZero())
	assert.Equal(t, int64(0), b.PayoutQu(5))
}

func TestCompute_EmptyMarket(t *testing.T) {
	b := Compute(0, 0, 0, 0)

	assert.True(t, b.WinnerPool.IsZero())
	assert.Equal(t, int64(0), b.PayoutQu(1))
}

func TestFeeSplit_SumsToTotalFees(t *testing.T) {
	b := Compute(1100, 10, 11, 425)
	split := b.FeeSplit()

	sum := split.PlatformQu.Add(split.ShareholderQu).Add(split.BurnQu).Add(split.OracleQu)
	assert.True(t, sum.Equal(b.TotalFees), "split sum = %s, totalFees = %s", sum, b.TotalFees)
}

func TestFeeSplit_Proportions(t *testing.T) {
	// loserPool = 100 makes the split legible.
	b := Compute(1100, 10, 11, 425)
	split := b.FeeSplit()

	require.True(t, b.LoserPool.Equal(dec("100")))
	assert.True(t, split.PlatformQu.Equal(dec("5")), "platform = %s", split.PlatformQu)
	assert.True(t, split.ShareholderQu.Equal(dec("5")), "shareholder = %s", split.ShareholderQu)
	assert.True(t, split.BurnQu.Equal(dec("2.5")), "burn = %s", split.BurnQu)
	assert.True(t, split.OracleQu.Equal(dec("4.25")), "oracle = %s", split.OracleQu)
}

func TestImpliedProbability(t *testing.T) {
	assert.True(t, ImpliedProbability(10, 11).Equal(dec("10").Div(dec("11"))))
	assert.True(t, ImpliedProbability(1, 4).Equal(dec("0.25")))
	assert.True(t, ImpliedProbability(0, 0).IsZero())
}
