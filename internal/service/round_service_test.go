package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/domain/domaintest"
	"github.com/qupredict/qupredict/internal/service"
)

type roundFixture struct {
	svc     *service.RoundService
	rounds  *domaintest.RoundStore
	wagers  *domaintest.WagerStore
	limiter *domaintest.RateLimiter
	bus     *domaintest.SignalBus
	audit   *domaintest.AuditStore
}

func newRoundFixture(t *testing.T, rounds ...domain.Round) *roundFixture {
	t.Helper()
	f := &roundFixture{
		rounds:  domaintest.NewRoundStore(rounds...),
		wagers:  domaintest.NewWagerStore(),
		limiter: &domaintest.RateLimiter{},
		bus:     domaintest.NewSignalBus(),
		audit:   domaintest.NewAuditStore(),
	}
	f.svc = service.NewRoundService(f.rounds, f.wagers, f.limiter, f.bus, f.audit, 100, testLogger())
	return f
}

func openRound() domain.Round {
	now := time.Now().UTC()
	return domain.Round{
		ID:         "rnd-1",
		Pair:       "QU/USDT",
		OpenPrice:  0.5,
		OpensAt:    now.Add(-30 * time.Second),
		LocksAt:    now.Add(30 * time.Second),
		ClosesAt:   now.Add(60 * time.Second),
		UpPoolQu:   1000,
		DownPoolQu: 500,
		Status:     domain.RoundStatusOpen,
		CreatedAt:  now.Add(-30 * time.Second),
		UpdatedAt:  now,
	}
}

func TestPlaceWager(t *testing.T) {
	ctx := context.Background()
	f := newRoundFixture(t, openRound())

	receipt, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
		RoundID:       "rnd-1",
		PayoutAddress: testAddr('A'),
		Side:          domain.FlashSideUp,
		AmountQu:      500,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.WagerStatusPending, receipt.Wager.Status)
	assert.Equal(t, int64(500), receipt.Wager.AmountQu)
	// Post-wager pools: up 1500 against 500 at a 3% fee.
	assert.Equal(t, "1.3233", receipt.Multiplier.StringFixed(4))

	round, err := f.rounds.GetByID(ctx, "rnd-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), round.UpPoolQu)
	assert.Equal(t, int64(500), round.DownPoolQu)

	assert.Contains(t, f.audit.Events(), "wager_placed")
	assert.Len(t, f.bus.Published(domain.ChannelRounds), 1)
}

func TestPlaceWagerLockedRound(t *testing.T) {
	ctx := context.Background()

	locked := openRound()
	locked.Status = domain.RoundStatusLocked

	pastCutoff := openRound()
	pastCutoff.ID = "rnd-2"
	pastCutoff.LocksAt = time.Now().UTC().Add(-time.Second)

	f := newRoundFixture(t, locked, pastCutoff)

	for _, roundID := range []string{"rnd-1", "rnd-2"} {
		_, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
			RoundID: roundID, PayoutAddress: testAddr('A'), Side: domain.FlashSideUp, AmountQu: 500,
		})
		assert.ErrorIs(t, err, domain.ErrRoundLocked, roundID)
	}
}

func TestPlaceWagerBelowMinimum(t *testing.T) {
	ctx := context.Background()
	f := newRoundFixture(t, openRound())

	_, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
		RoundID: "rnd-1", PayoutAddress: testAddr('A'), Side: domain.FlashSideDown, AmountQu: 50,
	})
	var fe domain.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "amount")
}

func TestPlaceWagerInvalidSide(t *testing.T) {
	ctx := context.Background()
	f := newRoundFixture(t, openRound())

	_, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
		RoundID: "rnd-1", PayoutAddress: testAddr('A'), Side: "sideways", AmountQu: 500,
	})
	var fe domain.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "side")
}

func TestPlaceWagerRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newRoundFixture(t, openRound())
	f.limiter.Deny = true

	_, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
		RoundID: "rnd-1", PayoutAddress: testAddr('A'), Side: domain.FlashSideUp, AmountQu: 500,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPlaceWagerBacksOutPoolWhenCreateFails(t *testing.T) {
	ctx := context.Background()
	f := newRoundFixture(t, openRound())
	f.wagers.CreateErr = errors.New("connection reset")

	_, err := f.svc.PlaceWager(ctx, domain.WagerRequest{
		RoundID: "rnd-1", PayoutAddress: testAddr('A'), Side: domain.FlashSideUp, AmountQu: 500,
	})
	require.Error(t, err)

	round, err := f.rounds.GetByID(ctx, "rnd-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), round.UpPoolQu, "pool contribution backed out")

	require.Len(t, f.rounds.PoolCalls, 2)
	assert.Equal(t, int64(500), f.rounds.PoolCalls[0].AmountQu)
	assert.Equal(t, int64(-500), f.rounds.PoolCalls[1].AmountQu)
}

func TestCurrentRound(t *testing.T) {
	ctx := context.Background()

	older := openRound()
	older.ID = "rnd-old"
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)

	f := newRoundFixture(t, older, openRound())

	round, err := f.svc.Current(ctx, "QU/USDT")
	require.NoError(t, err)
	assert.Equal(t, "rnd-1", round.ID)

	_, err = f.svc.Current(ctx, "BTC/USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
