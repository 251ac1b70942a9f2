package payout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qupredict/qupredict/internal/domain"
)

func TestMultiplier_BalancedPools(t *testing.T) {
	// 1 + 1000 × 0.97 / 1000
	m := Multiplier(1000, 1000)
	assert.True(t, m.Equal(dec("1.97")), "multiplier = %s", m)
}

func TestMultiplier_HeavyOwnSide(t *testing.T) {
	// 1 + 1000 × 0.97 / 2000
	m := Multiplier(2000, 1000)
	assert.True(t, m.Equal(dec("1.485")), "multiplier = %s", m)
}

func TestMultiplier_EmptyOpposingPool(t *testing.T) {
	// nothing to win from the other side: stake back
	m := Multiplier(1000, 0)
	assert.True(t, m.Equal(dec("1")), "multiplier = %s", m)
}

func TestMultiplier_EmptyOwnPool(t *testing.T) {
	m := Multiplier(0, 1000)
	assert.True(t, m.Equal(dec("1")), "multiplier = %s", m)
}

func TestSettleWager_CorrectSide(t *testing.T) {
	got := SettleWager(100, domain.FlashSideUp, domain.RoundOutcomeUp, 1000, 1000)
	assert.Equal(t, int64(197), got)
}

func TestSettleWager_CorrectSideFloors(t *testing.T) {
	// 1 + 970/300 = 4.2333…, 100 × 4.2333… floors to 423
	got := SettleWager(100, domain.FlashSideDown, domain.RoundOutcomeDown, 300, 1000)
	assert.Equal(t, int64(423), got)
}

func TestSettleWager_WrongSide(t *testing.T) {
	got := SettleWager(100, domain.FlashSideDown, domain.RoundOutcomeUp, 1000, 1000)
	assert.Equal(t, int64(0), got)
}

func TestSettleWager_PushRefundsInFull(t *testing.T) {
	assert.Equal(t, int64(100), SettleWager(100, domain.FlashSideUp, domain.RoundOutcomePush, 1000, 1000))
	assert.Equal(t, int64(100), SettleWager(100, domain.FlashSideDown, domain.RoundOutcomePush, 1000, 1000))
}
