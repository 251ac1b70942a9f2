package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/domain/domaintest"
	"github.com/qupredict/qupredict/internal/service"
	"github.com/qupredict/qupredict/internal/vault"
)

const testSeed = "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabc"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAddr(c byte) string {
	return strings.Repeat(string(c), domain.AddressLength)
}

func activeMarket() domain.Market {
	now := time.Now().UTC()
	return domain.Market{
		ID:       "mkt-1",
		Question: "Will QU close above 0.50 on Friday?",
		Type:     domain.MarketTypeBasic,
		Options: []domain.MarketOption{
			{Index: 0, Label: "Yes"},
			{Index: 1, Label: "No"},
		},
		MinBetQu:          10_000,
		MaxSlotsPerOption: 100,
		CreatorAddress:    testAddr('C'),
		CloseDate:         now.Add(24 * time.Hour),
		EndDate:           now.Add(48 * time.Hour),
		Status:            domain.MarketStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

type betFixture struct {
	svc     *service.BetService
	bets    *domaintest.BetStore
	markets *domaintest.MarketStore
	cache   *domaintest.BetCache
	limiter *domaintest.RateLimiter
	bus     *domaintest.SignalBus
	audit   *domaintest.AuditStore
}

func newBetFixture(t *testing.T, markets ...domain.Market) *betFixture {
	t.Helper()
	v, err := vault.New(testSeed)
	require.NoError(t, err)

	f := &betFixture{
		bets:    domaintest.NewBetStore(),
		markets: domaintest.NewMarketStore(markets...),
		cache:   domaintest.NewBetCache(),
		limiter: &domaintest.RateLimiter{},
		bus:     domaintest.NewSignalBus(),
		audit:   domaintest.NewAuditStore(),
	}
	f.svc = service.NewBetService(
		f.bets, f.markets, f.cache, f.limiter, f.bus, f.audit,
		v, 30*time.Minute, testLogger(),
	)
	return f
}

func TestPlaceBet(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	bet, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID:      "mkt-1",
		PayoutAddress: testAddr('A'),
		Option:        0,
		Slots:         5,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, bet.ID)
	assert.NotEmpty(t, bet.EscrowID)
	assert.Equal(t, domain.BetStatusAwaitingDeposit, bet.Status)
	assert.Equal(t, int64(50_000), bet.ExpectedAmountQu, "5 slots at 10000 qus each")
	assert.True(t, domain.ValidAddress(bet.EscrowAddress))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), bet.ExpiresAt, time.Minute)

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.OptionSlots(0), "slots reserved at placement")

	stored, err := f.bets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusAwaitingDeposit, stored.Status)

	assert.Len(t, f.bus.Published("escrow."+bet.ID), 1)
	assert.Contains(t, f.audit.Events(), "bet_placed")
}

func TestPlaceBetDeterministicEscrowAddresses(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	first, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
	})
	require.NoError(t, err)
	second, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.EscrowAddress, second.EscrowAddress, "each escrow gets its own deposit address")
}

func TestPlaceBetShortAddressFailsBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID:      "mkt-1",
		PayoutAddress: strings.Repeat("A", 59),
		Option:        0,
		Slots:         5,
	})

	var fe domain.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "payoutAddress")

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, m.OptionSlots(0), "no slots reserved")
	assert.Empty(t, f.audit.Events(), "nothing persisted or audited")
}

func TestPlaceBetMarketClosed(t *testing.T) {
	ctx := context.Background()

	closed := activeMarket()
	closed.Status = domain.MarketStatusClosed

	pastClose := activeMarket()
	pastClose.ID = "mkt-2"
	pastClose.CloseDate = time.Now().UTC().Add(-time.Minute)

	f := newBetFixture(t, closed, pastClose)

	for _, marketID := range []string{"mkt-1", "mkt-2"} {
		_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
			MarketID: marketID, PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
		})
		assert.ErrorIs(t, err, domain.ErrMarketClosed, marketID)
	}
}

func TestPlaceBetUnknownOption(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 5, Slots: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBet)
}

func TestPlaceBetSlotCap(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 100,
	})
	require.NoError(t, err, "filling the option exactly to cap is allowed")

	_, err = f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('B'), Option: 0, Slots: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBet, "one slot over cap is refused")
}

func TestPlaceBetRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())
	f.limiter.Deny = true

	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPlaceBetReleasesSlotsWhenCreateFails(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())
	f.bets.CreateErr = errors.New("connection reset")

	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 5,
	})
	require.Error(t, err)

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, m.OptionSlots(0), "reservation backed out")
}

func TestCancelPreDeposit(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	bet, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 1, Slots: 3,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, bet.EscrowID))

	stored, err := f.bets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusExpired, stored.Status)

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, m.OptionSlots(1), "slots handed back")

	assert.Contains(t, f.audit.Events(), "bet_cancelled")
}

func TestCancelAfterDepositRefused(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())
	require.NoError(t, f.bets.Create(ctx, domain.Bet{
		ID:       "bet-1",
		EscrowID: "esc-1",
		MarketID: "mkt-1",
		Status:   domain.BetStatusDepositDetected,
	}))

	err := f.svc.Cancel(ctx, "esc-1")
	assert.ErrorIs(t, err, domain.ErrDepositDetected)
}

func TestCancelTerminalRefused(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())
	require.NoError(t, f.bets.Create(ctx, domain.Bet{
		ID:       "bet-1",
		EscrowID: "esc-1",
		MarketID: "mkt-1",
		Status:   domain.BetStatusSwept,
	}))

	err := f.svc.Cancel(ctx, "esc-1")
	assert.ErrorIs(t, err, domain.ErrStaleTransition)
}

func TestCancelUnknownEscrow(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t, activeMarket())

	err := f.svc.Cancel(ctx, "esc-nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusBackfillsCache(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t)
	require.NoError(t, f.bets.Create(ctx, domain.Bet{
		ID:       "bet-1",
		EscrowID: "esc-1",
		MarketID: "mkt-1",
		Status:   domain.BetStatusActiveInSC,
	}))

	bet, err := f.svc.Status(ctx, "bet-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusActiveInSC, bet.Status)

	cached, err := f.cache.Get(ctx, "bet-1")
	require.NoError(t, err)
	assert.Equal(t, bet, cached)
}

func TestStatusUnknownBet(t *testing.T) {
	ctx := context.Background()
	f := newBetFixture(t)

	_, err := f.svc.Status(ctx, "bet-nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type stubStreaks struct {
	calls  int
	streak int
}

func (s *stubStreaks) RecordBet(ctx context.Context, payoutAddress string, at time.Time) (int, error) {
	s.calls++
	return s.streak, nil
}

func TestStreakTrackerIsOptional(t *testing.T) {
	ctx := context.Background()

	// Without a tracker placement works and nothing panics.
	f := newBetFixture(t, activeMarket())
	_, err := f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
	})
	require.NoError(t, err)

	// With a tracker every placement records once.
	f = newBetFixture(t, activeMarket())
	streaks := &stubStreaks{streak: 3}
	f.svc.WithStreakTracker(streaks)

	_, err = f.svc.PlaceBet(ctx, domain.BetRequest{
		MarketID: "mkt-1", PayoutAddress: testAddr('A'), Option: 0, Slots: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, streaks.calls)
}
