package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// lifecycle order used by the forward-path tests
var happyPath = []BetStatus{
	BetStatusAwaitingDeposit,
	BetStatusDepositDetected,
	BetStatusJoiningSC,
	BetStatusActiveInSC,
	BetStatusWonAwaitingSweep,
	BetStatusSwept,
}

func TestBetStatus_HappyPathAdvances(t *testing.T) {
	for i := 0; i < len(happyPath)-1; i++ {
		assert.True(t, happyPath[i].CanTransition(happyPath[i+1]),
			"%s -> %s should be allowed", happyPath[i], happyPath[i+1])
	}
}

func TestBetStatus_NeverRegresses(t *testing.T) {
	for i := 1; i < len(happyPath); i++ {
		for j := 0; j < i; j++ {
			assert.False(t, happyPath[i].CanTransition(happyPath[j]),
				"%s -> %s must be refused", happyPath[i], happyPath[j])
		}
	}
}

func TestBetStatus_TerminalAdmitsNothing(t *testing.T) {
	terminals := []BetStatus{
		BetStatusLost, BetStatusSwept, BetStatusCompleted,
		BetStatusExpired, BetStatusRefunded, BetStatusFailed,
	}
	all := append(append([]BetStatus{}, happyPath...), terminals...)
	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, from.CanTransition(to), "%s -> %s must be refused", from, to)
		}
	}
}

func TestBetStatus_OutOfBandTerminalsReachableFromAnyLiveState(t *testing.T) {
	live := []BetStatus{
		BetStatusAwaitingDeposit, BetStatusDepositDetected,
		BetStatusJoiningSC, BetStatusActiveInSC, BetStatusWonAwaitingSweep,
	}
	for _, from := range live {
		assert.False(t, from.IsTerminal())
		assert.True(t, from.CanTransition(BetStatusExpired))
		assert.True(t, from.CanTransition(BetStatusRefunded))
		assert.True(t, from.CanTransition(BetStatusFailed))
	}
}

func TestBetStatus_WinAndLossAreAlternatives(t *testing.T) {
	assert.True(t, BetStatusActiveInSC.CanTransition(BetStatusWonAwaitingSweep))
	assert.True(t, BetStatusActiveInSC.CanTransition(BetStatusLost))
	assert.False(t, BetStatusWonAwaitingSweep.CanTransition(BetStatusLost))
	assert.False(t, BetStatusLost.CanTransition(BetStatusWonAwaitingSweep))
	assert.False(t, BetStatusLost.CanTransition(BetStatusSwept))
}

func TestBetStatus_SweptAndCompletedAreAlternatives(t *testing.T) {
	assert.True(t, BetStatusWonAwaitingSweep.CanTransition(BetStatusSwept))
	assert.True(t, BetStatusWonAwaitingSweep.CanTransition(BetStatusCompleted))
	assert.False(t, BetStatusSwept.CanTransition(BetStatusCompleted))
	assert.False(t, BetStatusCompleted.CanTransition(BetStatusSwept))
}

func TestBetStatus_UnknownNeverApplies(t *testing.T) {
	unknown := BetStatus("settling")
	assert.False(t, unknown.Known())
	assert.False(t, unknown.IsTerminal())
	assert.False(t, BetStatusAwaitingDeposit.CanTransition(unknown))
}

func TestBetStatus_IsWin(t *testing.T) {
	assert.True(t, BetStatusWonAwaitingSweep.IsWin())
	assert.True(t, BetStatusSwept.IsWin())
	assert.True(t, BetStatusCompleted.IsWin())
	assert.False(t, BetStatusLost.IsWin())
	assert.False(t, BetStatusActiveInSC.IsWin())
}

func TestCostQu(t *testing.T) {
	assert.Equal(t, int64(50000), CostQu(5, 10000))
	assert.Equal(t, int64(100), CostQu(1, 100))
}
