package escrow_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/domain/domaintest"
	"github.com/qupredict/qupredict/internal/escrow"
	"github.com/qupredict/qupredict/internal/platform/qubic"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testAddr(c byte) string {
	return strings.Repeat(string(c), domain.AddressLength)
}

// fakeGateway is an in-memory ledger gateway honoring the idempotent submit
// contract: repeating a join for the same escrow, or a transfer with the
// same reference, returns the original transaction ID.
type fakeGateway struct {
	mu        sync.Mutex
	balances  map[string]qubic.Balance
	txs       map[string]qubic.Transaction
	submitted map[string]string
	joins     []qubic.JoinBetRequest
	transfers []qubic.TransferRequest
	nextTx    int

	joinErr     error
	transferErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balances:  make(map[string]qubic.Balance),
		txs:       make(map[string]qubic.Transaction),
		submitted: make(map[string]string),
	}
}

func (g *fakeGateway) setBalance(address string, amountQu int64, txID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[address] = qubic.Balance{
		Address: address, BalanceQu: amountQu, Tick: 100, LatestInTxID: txID,
	}
}

func (g *fakeGateway) addPendingTx(txID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txs[txID] = qubic.Transaction{TxID: txID, Status: qubic.TxPending}
}

func (g *fakeGateway) setTxStatus(txID string, status qubic.TxStatus, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx := g.txs[txID]
	tx.TxID = txID
	tx.Status = status
	tx.Message = msg
	g.txs[txID] = tx
}

func (g *fakeGateway) submittedTx(key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitted[key]
}

func (g *fakeGateway) GetBalance(ctx context.Context, address string) (qubic.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bal, ok := g.balances[address]
	if !ok {
		return qubic.Balance{}, fmt.Errorf("balance %s: %w", address, domain.ErrNotFound)
	}
	return bal, nil
}

func (g *fakeGateway) SubmitJoinBet(ctx context.Context, req qubic.JoinBetRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.joinErr != nil {
		return "", g.joinErr
	}
	key := "join:" + req.EscrowID
	if txID, ok := g.submitted[key]; ok {
		return txID, nil
	}
	txID := g.newTx()
	g.submitted[key] = txID
	g.joins = append(g.joins, req)
	return txID, nil
}

func (g *fakeGateway) SubmitTransfer(ctx context.Context, req qubic.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.transferErr != nil {
		return "", g.transferErr
	}
	if txID, ok := g.submitted[req.Reference]; ok {
		return txID, nil
	}
	txID := g.newTx()
	g.submitted[req.Reference] = txID
	g.transfers = append(g.transfers, req)
	return txID, nil
}

func (g *fakeGateway) GetTransaction(ctx context.Context, txID string) (qubic.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.txs[txID]
	if !ok {
		return qubic.Transaction{}, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	return tx, nil
}

// newTx registers a pending transaction; callers hold the mutex.
func (g *fakeGateway) newTx() string {
	g.nextTx++
	txID := fmt.Sprintf("tx-%d", g.nextTx)
	g.txs[txID] = qubic.Transaction{TxID: txID, Status: qubic.TxPending}
	return txID
}

type engineFixture struct {
	bets    *domaintest.BetStore
	markets *domaintest.MarketStore
	cache   *domaintest.BetCache
	locks   *domaintest.LockManager
	bus     *domaintest.SignalBus
	audit   *domaintest.AuditStore
	gw      *fakeGateway
	engine  *escrow.Engine
}

func newEngineFixture(t *testing.T, cfg escrow.Config, markets []domain.Market, bets []domain.Bet) *engineFixture {
	t.Helper()
	f := &engineFixture{
		bets:    domaintest.NewBetStore(bets...),
		markets: domaintest.NewMarketStore(markets...),
		cache:   domaintest.NewBetCache(),
		locks:   domaintest.NewLockManager(),
		bus:     domaintest.NewSignalBus(),
		audit:   domaintest.NewAuditStore(),
		gw:      newFakeGateway(),
	}
	f.engine = escrow.NewEngine(f.bets, f.markets, f.cache, f.locks, f.bus, f.audit, f.gw, cfg, testLogger)
	return f
}

func (f *engineFixture) reconcile(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Reconcile(context.Background()))
}

func (f *engineFixture) bet(t *testing.T, id string) domain.Bet {
	t.Helper()
	b, err := f.bets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *engineFixture) settlements(t *testing.T) []string {
	t.Helper()
	msgs, err := f.bus.StreamRead(context.Background(), domain.StreamSettlements, "", 100)
	require.NoError(t, err)
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Payload)
	}
	return out
}

// openMarket accepts bets: both dates are still ahead.
func openMarket(yesSlots, noSlots int64) domain.Market {
	now := time.Now().UTC()
	return domain.Market{
		ID:       "mkt-1",
		Question: "Will the network upgrade ship this epoch?",
		Type:     domain.MarketTypeBasic,
		Options: []domain.MarketOption{
			{Index: 0, Label: "Yes", Slots: yesSlots},
			{Index: 1, Label: "No", Slots: noSlots},
		},
		MinBetQu:          10_000,
		MaxSlotsPerOption: 100,
		CloseDate:         now.Add(24 * time.Hour),
		EndDate:           now.Add(48 * time.Hour),
		Status:            domain.MarketStatusActive,
		CreatedAt:         now.Add(-time.Hour),
		UpdatedAt:         now.Add(-time.Hour),
	}
}

// resolvedMarket has already been decided for option 0.
func resolvedMarket(yesSlots, noSlots, oracleFeeBps int64) domain.Market {
	m := openMarket(yesSlots, noSlots)
	now := time.Now().UTC()
	m.CloseDate = now.Add(-2 * time.Hour)
	m.EndDate = now.Add(-time.Hour)
	m.OracleFeeBps = oracleFeeBps
	m.Status = domain.MarketStatusResolved
	winning := 0
	m.WinningOption = &winning
	return m
}

func liveBet(id string, status domain.BetStatus) domain.Bet {
	now := time.Now().UTC()
	b := domain.Bet{
		ID:               "bet-" + id,
		EscrowID:         "esc-" + id,
		MarketID:         "mkt-1",
		Option:           0,
		Slots:            5,
		PayoutAddress:    testAddr('P'),
		EscrowAddress:    "ESCROWADDR" + id,
		ExpectedAmountQu: 50_000,
		Status:           status,
		ExpiresAt:        now.Add(30 * time.Minute),
		CreatedAt:        now.Add(-time.Minute),
		UpdatedAt:        now.Add(-time.Minute),
	}
	if status.Rank() >= domain.BetStatusDepositDetected.Rank() {
		b.DepositAmountQu = 50_000
		b.DepositTxID = "tx-dep-" + id
	}
	return b
}

func TestDepositDetection(t *testing.T) {
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.setBalance(b.EscrowAddress, 50_000, "tx-in-9")

	f.reconcile(t)

	got := f.bet(t, b.ID)
	assert.Equal(t, domain.BetStatusDepositDetected, got.Status)
	assert.Equal(t, int64(50_000), got.DepositAmountQu)
	assert.Equal(t, "tx-in-9", got.DepositTxID)

	cached, err := f.cache.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusDepositDetected, cached.Status)

	assert.Len(t, f.bus.Published(domain.ChannelEscrow+"."+b.ID), 1)
	assert.Contains(t, f.audit.Events(), "deposit_detected")
}

func TestDepositBelowExpectedWaits(t *testing.T) {
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.setBalance(b.EscrowAddress, 49_999, "tx-in-9")

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusAwaitingDeposit, f.bet(t, b.ID).Status)
	assert.Empty(t, f.audit.Events())
}

func TestDepositOverpaymentRecorded(t *testing.T) {
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.setBalance(b.EscrowAddress, 61_000, "tx-in-9")

	f.reconcile(t)

	got := f.bet(t, b.ID)
	assert.Equal(t, domain.BetStatusDepositDetected, got.Status)
	assert.Equal(t, int64(61_000), got.DepositAmountQu)
}

func TestDepositWindowExpiry(t *testing.T) {
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	b.ExpiresAt = time.Now().UTC().Add(-time.Second)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusExpired, f.bet(t, b.ID).Status)

	m, err := f.markets.GetByID(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.OptionSlots(0), "expired slots return to the pool")

	entries := f.settlements(t)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "bet_expired")
}

func TestJoinSubmitted(t *testing.T) {
	b := liveBet("1", domain.BetStatusDepositDetected)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})

	f.reconcile(t)

	got := f.bet(t, b.ID)
	assert.Equal(t, domain.BetStatusJoiningSC, got.Status)
	assert.Equal(t, "tx-1", got.JoinBetTxID)

	require.Len(t, f.gw.joins, 1)
	join := f.gw.joins[0]
	assert.Equal(t, b.EscrowID, join.EscrowID)
	assert.Equal(t, b.MarketID, join.MarketID)
	assert.Equal(t, b.Option, join.Option)
	assert.Equal(t, b.Slots, join.Slots)
	assert.Equal(t, int64(50_000), join.AmountQu)
}

func TestJoinRejectedFailsBet(t *testing.T) {
	b := liveBet("1", domain.BetStatusDepositDetected)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.joinErr = fmt.Errorf("gateway: submit join: %w", domain.ErrTxRejected)

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusFailed, f.bet(t, b.ID).Status)

	m, err := f.markets.GetByID(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.OptionSlots(0), "a stake that never joined frees its slots")
	assert.Contains(t, f.audit.Events(), "bet_failed")
}

func TestJoinConfirmed(t *testing.T) {
	b := liveBet("1", domain.BetStatusJoiningSC)
	b.JoinBetTxID = "tx-join"
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.addPendingTx("tx-join")
	f.gw.setTxStatus("tx-join", qubic.TxConfirmed, "")

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusActiveInSC, f.bet(t, b.ID).Status)
	assert.Contains(t, f.audit.Events(), "join_confirmed")
}

func TestJoinStillPendingHolds(t *testing.T) {
	b := liveBet("1", domain.BetStatusJoiningSC)
	b.JoinBetTxID = "tx-join"
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.addPendingTx("tx-join")

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusJoiningSC, f.bet(t, b.ID).Status)
	assert.Empty(t, f.audit.Events())
}

func TestJoinTxRejectedFailsBet(t *testing.T) {
	b := liveBet("1", domain.BetStatusJoiningSC)
	b.JoinBetTxID = "tx-join"
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.addPendingTx("tx-join")
	f.gw.setTxStatus("tx-join", qubic.TxRejected, "contract refused the join")

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusFailed, f.bet(t, b.ID).Status)
}

func TestSettlementSplitsPool(t *testing.T) {
	winner := liveBet("w", domain.BetStatusActiveInSC)
	loser := liveBet("l", domain.BetStatusActiveInSC)
	loser.Option = 1
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{resolvedMarket(5, 5, 0)}, []domain.Bet{winner, loser})

	f.reconcile(t)

	// Pool 100 000, loser pool 50 000, base fee 12.5% leaves 93 750 for the
	// five winning slots.
	w := f.bet(t, winner.ID)
	assert.Equal(t, domain.BetStatusWonAwaitingSweep, w.Status)
	assert.Equal(t, int64(93_750), w.PayoutAmountQu)

	assert.Equal(t, domain.BetStatusLost, f.bet(t, loser.ID).Status)
	assert.Len(t, f.settlements(t), 2)
}

func TestSettlementDeferredWhileDepositPending(t *testing.T) {
	active := liveBet("a", domain.BetStatusActiveInSC)
	straggler := liveBet("s", domain.BetStatusAwaitingDeposit)
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{resolvedMarket(10, 0, 0)}, []domain.Bet{active, straggler})

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusActiveInSC, f.bet(t, active.ID).Status,
		"payouts wait until every stake has joined or died")
}

func TestExpiredStragglerUnblocksSettlementSamePass(t *testing.T) {
	active := liveBet("a", domain.BetStatusActiveInSC)
	straggler := liveBet("s", domain.BetStatusAwaitingDeposit)
	straggler.ExpiresAt = time.Now().UTC().Add(-time.Second)
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{resolvedMarket(10, 0, 0)}, []domain.Bet{active, straggler})

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusExpired, f.bet(t, straggler.ID).Status)

	// The straggler's five slots left the pool before the payout was
	// computed: the winner gets back exactly its own stake.
	got := f.bet(t, active.ID)
	assert.Equal(t, domain.BetStatusWonAwaitingSweep, got.Status)
	assert.Equal(t, int64(50_000), got.PayoutAmountQu)
}

func TestSweep(t *testing.T) {
	b := liveBet("1", domain.BetStatusWonAwaitingSweep)
	b.PayoutAmountQu = 93_750
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{resolvedMarket(5, 0, 0)}, []domain.Bet{b})

	f.reconcile(t)

	got := f.bet(t, b.ID)
	assert.Equal(t, domain.BetStatusSwept, got.Status)
	assert.Equal(t, "tx-1", got.SweepTxID)

	require.Len(t, f.gw.transfers, 1)
	tr := f.gw.transfers[0]
	assert.Equal(t, b.EscrowAddress, tr.FromAddress)
	assert.Equal(t, b.PayoutAddress, tr.ToAddress)
	assert.Equal(t, int64(93_750), tr.AmountQu)
	assert.Equal(t, "sweep:"+b.EscrowID, tr.Reference)

	_, err := f.cache.Get(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "terminal bets leave the cache")
}

func TestSweepVerifiedDelivery(t *testing.T) {
	b := liveBet("1", domain.BetStatusWonAwaitingSweep)
	b.PayoutAmountQu = 93_750
	f := newEngineFixture(t, escrow.Config{VerifyPayouts: true},
		[]domain.Market{resolvedMarket(5, 0, 0)}, []domain.Bet{b})

	f.reconcile(t)

	// Transfer submitted but unconfirmed: the bet holds.
	assert.Equal(t, domain.BetStatusWonAwaitingSweep, f.bet(t, b.ID).Status)
	txID := f.gw.submittedTx("sweep:" + b.EscrowID)
	require.NotEmpty(t, txID)

	f.gw.setTxStatus(txID, qubic.TxConfirmed, "")
	f.reconcile(t)

	got := f.bet(t, b.ID)
	assert.Equal(t, domain.BetStatusCompleted, got.Status)
	assert.Equal(t, txID, got.SweepTxID)
	assert.Equal(t, txID, f.gw.submittedTx("sweep:"+b.EscrowID),
		"resubmission reuses the original transfer")
}

func TestSweepRejectedFailsWithoutSlotRelease(t *testing.T) {
	b := liveBet("1", domain.BetStatusWonAwaitingSweep)
	b.PayoutAmountQu = 93_750
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{resolvedMarket(5, 0, 0)}, []domain.Bet{b})
	f.gw.transferErr = fmt.Errorf("gateway: submit transfer: %w", domain.ErrTxRejected)

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusFailed, f.bet(t, b.ID).Status)

	m, err := f.markets.GetByID(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.OptionSlots(0),
		"the settled pool stays frozen after a post-join failure")
}

func TestCancelledMarketRefunds(t *testing.T) {
	m := openMarket(15, 0)
	m.Status = domain.MarketStatusCancelled

	unfunded := liveBet("1", domain.BetStatusAwaitingDeposit)
	funded := liveBet("2", domain.BetStatusDepositDetected)
	joined := liveBet("3", domain.BetStatusActiveInSC)
	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{m}, []domain.Bet{unfunded, funded, joined})

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusRefunded, f.bet(t, unfunded.ID).Status)
	assert.Equal(t, domain.BetStatusRefunded, f.bet(t, funded.ID).Status)
	assert.Equal(t, domain.BetStatusRefunded, f.bet(t, joined.ID).Status)

	require.Len(t, f.gw.transfers, 2, "nothing arrived for the unfunded escrow")
	for _, tr := range f.gw.transfers {
		assert.True(t, strings.HasPrefix(tr.Reference, "refund:"))
		assert.Equal(t, int64(50_000), tr.AmountQu)
	}
	assert.Len(t, f.settlements(t), 3)
}

func TestFeeSweepAfterFullSettlement(t *testing.T) {
	treasury := testAddr('T')
	winner := liveBet("w", domain.BetStatusActiveInSC)
	loser := liveBet("l", domain.BetStatusActiveInSC)
	loser.Option = 1
	f := newEngineFixture(t, escrow.Config{Treasury: treasury},
		[]domain.Market{resolvedMarket(5, 5, 250)}, []domain.Bet{winner, loser})

	f.reconcile(t)

	// Platform keeps 500 bps of the 50 000 loser pool.
	var fee *qubic.TransferRequest
	for i := range f.gw.transfers {
		if f.gw.transfers[i].Reference == "fees:mkt-1" {
			fee = &f.gw.transfers[i]
		}
	}
	require.NotNil(t, fee)
	assert.Equal(t, "pool:mkt-1", fee.FromAddress)
	assert.Equal(t, treasury, fee.ToAddress)
	assert.Equal(t, int64(2_500), fee.AmountQu)
	assert.Contains(t, f.audit.Events(), "fees_swept")
}

func TestLockedEscrowSkipped(t *testing.T) {
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})
	f.gw.setBalance(b.EscrowAddress, 50_000, "tx-in-9")
	f.locks.Hold("escrow:" + b.EscrowID)

	f.reconcile(t)

	assert.Equal(t, domain.BetStatusAwaitingDeposit, f.bet(t, b.ID).Status)
	assert.Empty(t, f.audit.Events())
}

func TestMarketPhaseTransitions(t *testing.T) {
	now := time.Now().UTC()

	closing := openMarket(0, 0)
	closing.ID = "mkt-closing"
	closing.CloseDate = now.Add(-time.Minute)

	ending := openMarket(0, 0)
	ending.ID = "mkt-ending"
	ending.CloseDate = now.Add(-2 * time.Hour)
	ending.EndDate = now.Add(-time.Minute)

	open := openMarket(0, 0)
	open.ID = "mkt-open"

	f := newEngineFixture(t, escrow.Config{},
		[]domain.Market{closing, ending, open}, nil)

	f.reconcile(t)

	ctx := context.Background()
	got, err := f.markets.GetByID(ctx, "mkt-closing")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, got.Status)

	got, err = f.markets.GetByID(ctx, "mkt-ending")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolving, got.Status,
		"a market past both dates advances twice in one pass")

	got, err = f.markets.GetByID(ctx, "mkt-open")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, got.Status)

	assert.Len(t, f.bus.Published(domain.ChannelMarkets), 3)
}

func TestRunStopsWithContext(t *testing.T) {
	f := newEngineFixture(t, escrow.Config{PollInterval: 10 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := f.engine.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	b := liveBet("1", domain.BetStatusAwaitingDeposit)
	b.DepositAmountQu = 0
	b.DepositTxID = ""
	f := newEngineFixture(t, escrow.Config{}, []domain.Market{openMarket(5, 0)}, []domain.Bet{b})

	f.gw.setBalance(b.EscrowAddress, 50_000, "tx-in-1")
	f.reconcile(t)
	require.Equal(t, domain.BetStatusDepositDetected, f.bet(t, b.ID).Status)

	f.reconcile(t)
	got := f.bet(t, b.ID)
	require.Equal(t, domain.BetStatusJoiningSC, got.Status)

	f.gw.setTxStatus(got.JoinBetTxID, qubic.TxConfirmed, "")
	f.reconcile(t)
	require.Equal(t, domain.BetStatusActiveInSC, f.bet(t, b.ID).Status)

	require.NoError(t, f.markets.Resolve(ctx, "mkt-1", 0))
	f.reconcile(t)
	got = f.bet(t, b.ID)
	require.Equal(t, domain.BetStatusWonAwaitingSweep, got.Status)
	assert.Equal(t, int64(50_000), got.PayoutAmountQu, "a sole winner takes back the whole pool")

	f.reconcile(t)
	got = f.bet(t, b.ID)
	require.Equal(t, domain.BetStatusSwept, got.Status)
	assert.NotEmpty(t, got.SweepTxID)

	assert.Equal(t, []string{
		"deposit_detected",
		"join_submitted",
		"join_confirmed",
		"bet_won",
		"bet_swept",
	}, f.audit.Events())
}
