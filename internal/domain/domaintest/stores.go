// Package domaintest provides in-memory implementations of the domain
// ports for tests. The stores honor the same guard semantics as the
// Postgres layer (from-status checks, slot caps, open-pool guards) so
// lifecycle tests exercise realistic failure paths without a database.
package domaintest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketStore returns a MarketStore seeded with the given markets.
func NewMarketStore(seed ...domain.Market) *MarketStore {
	s := &MarketStore{markets: make(map[string]domain.Market)}
	for _, m := range seed {
		s.markets[m.ID] = cloneMarket(m)
	}
	return s
}

var _ domain.MarketStore = (*MarketStore)(nil)

func (s *MarketStore) Create(ctx context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[market.ID]; ok {
		return fmt.Errorf("domaintest: market %s: %w", market.ID, domain.ErrAlreadyExists)
	}
	s.markets[market.ID] = cloneMarket(market)
	return nil
}

func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("domaintest: market %s: %w", id, domain.ErrNotFound)
	}
	return cloneMarket(m), nil
}

func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, cloneMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (s *MarketStore) Count(ctx context.Context, status domain.MarketStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.markets {
		if status == "" || m.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MarketStore) SetStatus(ctx context.Context, id string, from, to domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("domaintest: market %s: %w", id, domain.ErrNotFound)
	}
	if m.Status != from {
		return fmt.Errorf("domaintest: market %s is %s not %s: %w", id, m.Status, from, domain.ErrStaleTransition)
	}
	m.Status = to
	m.UpdatedAt = time.Now().UTC()
	s.markets[id] = m
	return nil
}

func (s *MarketStore) Resolve(ctx context.Context, id string, winningOption int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("domaintest: market %s: %w", id, domain.ErrNotFound)
	}
	if m.Status.IsTerminal() {
		return fmt.Errorf("domaintest: market %s already %s: %w", id, m.Status, domain.ErrStaleTransition)
	}
	m.Status = domain.MarketStatusResolved
	m.WinningOption = &winningOption
	m.UpdatedAt = time.Now().UTC()
	s.markets[id] = m
	return nil
}

func (s *MarketStore) AddSlots(ctx context.Context, marketID string, option int, delta, cap int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return fmt.Errorf("domaintest: market %s: %w", marketID, domain.ErrNotFound)
	}
	for i := range m.Options {
		if m.Options[i].Index != option {
			continue
		}
		next := m.Options[i].Slots + delta
		if next < 0 || next > cap {
			return fmt.Errorf("domaintest: market %s option %d: %w: slot cap reached", marketID, option, domain.ErrInvalidBet)
		}
		m.Options[i].Slots = next
		m.UpdatedAt = time.Now().UTC()
		s.markets[marketID] = m
		return nil
	}
	return fmt.Errorf("domaintest: market %s option %d: %w", marketID, option, domain.ErrNotFound)
}

func (s *MarketStore) ListEnded(ctx context.Context, now time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Status.IsTerminal() && !m.CloseDate.After(now) {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseDate.Before(out[j].CloseDate) })
	return out, nil
}

// BetStore is an in-memory domain.BetStore.
type BetStore struct {
	mu       sync.Mutex
	bets     map[string]domain.Bet
	byEscrow map[string]string

	// CreateErr, when set, fails the next Create call.
	CreateErr error
}

// NewBetStore returns a BetStore seeded with the given bets.
func NewBetStore(seed ...domain.Bet) *BetStore {
	s := &BetStore{bets: make(map[string]domain.Bet), byEscrow: make(map[string]string)}
	for _, b := range seed {
		s.bets[b.ID] = b
		s.byEscrow[b.EscrowID] = b.ID
	}
	return s
}

var _ domain.BetStore = (*BetStore)(nil)

func (s *BetStore) Create(ctx context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		err := s.CreateErr
		s.CreateErr = nil
		return err
	}
	if _, ok := s.bets[bet.ID]; ok {
		return fmt.Errorf("domaintest: bet %s: %w", bet.ID, domain.ErrAlreadyExists)
	}
	s.bets[bet.ID] = bet
	s.byEscrow[bet.EscrowID] = bet.ID
	return nil
}

func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("domaintest: bet %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (s *BetStore) GetByEscrowID(ctx context.Context, escrowID string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEscrow[escrowID]
	if !ok {
		return domain.Bet{}, fmt.Errorf("domaintest: escrow %s: %w", escrowID, domain.ErrNotFound)
	}
	return s.bets[id], nil
}

func (s *BetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool { return b.MarketID == marketID }, opts, false), nil
}

func (s *BetStore) ListByAddress(ctx context.Context, payoutAddress string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool { return b.PayoutAddress == payoutAddress }, opts, false), nil
}

func (s *BetStore) ListLive(ctx context.Context) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool { return !b.Status.IsTerminal() }, domain.ListOpts{}, true), nil
}

func (s *BetStore) ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Bet, error) {
	out := s.list(func(b domain.Bet) bool {
		return b.Status.IsTerminal() && b.UpdatedAt.Before(cutoff)
	}, domain.ListOpts{Limit: limit}, true)
	return out, nil
}

func (s *BetStore) Advance(ctx context.Context, id string, from, to domain.BetStatus, upd domain.BetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return fmt.Errorf("domaintest: bet %s: %w", id, domain.ErrNotFound)
	}
	if b.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("domaintest: bet %s is %s, cannot move %s to %s: %w", id, b.Status, from, to, domain.ErrStaleTransition)
	}
	b.Status = to
	if upd.DepositAmountQu != 0 {
		b.DepositAmountQu = upd.DepositAmountQu
	}
	if upd.DepositTxID != "" {
		b.DepositTxID = upd.DepositTxID
	}
	if upd.JoinBetTxID != "" {
		b.JoinBetTxID = upd.JoinBetTxID
	}
	if upd.PayoutAmountQu != 0 {
		b.PayoutAmountQu = upd.PayoutAmountQu
	}
	if upd.SweepTxID != "" {
		b.SweepTxID = upd.SweepTxID
	}
	b.UpdatedAt = time.Now().UTC()
	s.bets[id] = b
	return nil
}

func (s *BetStore) list(keep func(domain.Bet) bool, opts domain.ListOpts, asc bool) []domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts)
}

// RoundStore is an in-memory domain.RoundStore.
type RoundStore struct {
	mu     sync.Mutex
	rounds map[string]domain.Round

	// PoolCalls records every AddToPool invocation in order.
	PoolCalls []PoolCall
}

// PoolCall is one recorded AddToPool invocation.
type PoolCall struct {
	RoundID  string
	Side     domain.FlashSide
	AmountQu int64
}

// NewRoundStore returns a RoundStore seeded with the given rounds.
func NewRoundStore(seed ...domain.Round) *RoundStore {
	s := &RoundStore{rounds: make(map[string]domain.Round)}
	for _, r := range seed {
		s.rounds[r.ID] = r
	}
	return s
}

var _ domain.RoundStore = (*RoundStore)(nil)

func (s *RoundStore) Create(ctx context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[round.ID]; ok {
		return fmt.Errorf("domaintest: round %s: %w", round.ID, domain.ErrAlreadyExists)
	}
	s.rounds[round.ID] = round
	return nil
}

func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, fmt.Errorf("domaintest: round %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *RoundStore) Latest(ctx context.Context, pair string) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.Round
	found := false
	for _, r := range s.rounds {
		if r.Pair != pair {
			continue
		}
		if !found || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
			found = true
		}
	}
	if !found {
		return domain.Round{}, fmt.Errorf("domaintest: no round for %s: %w", pair, domain.ErrNotFound)
	}
	return latest, nil
}

func (s *RoundStore) List(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if pair != "" && r.Pair != pair {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (s *RoundStore) SetStatus(ctx context.Context, id string, from, to domain.RoundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return fmt.Errorf("domaintest: round %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != from {
		return fmt.Errorf("domaintest: round %s is %s not %s: %w", id, r.Status, from, domain.ErrStaleTransition)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	s.rounds[id] = r
	return nil
}

func (s *RoundStore) Resolve(ctx context.Context, id string, closePrice float64, outcome domain.RoundOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return fmt.Errorf("domaintest: round %s: %w", id, domain.ErrNotFound)
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("domaintest: round %s already %s: %w", id, r.Status, domain.ErrStaleTransition)
	}
	r.ClosePrice = closePrice
	r.Outcome = outcome
	r.Status = domain.RoundStatusResolved
	r.UpdatedAt = time.Now().UTC()
	s.rounds[id] = r
	return nil
}

func (s *RoundStore) AddToPool(ctx context.Context, id string, side domain.FlashSide, amountQu int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return fmt.Errorf("domaintest: round %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != domain.RoundStatusOpen {
		return fmt.Errorf("domaintest: round %s is %s: %w", id, r.Status, domain.ErrRoundLocked)
	}
	if side == domain.FlashSideUp {
		r.UpPoolQu += amountQu
	} else {
		r.DownPoolQu += amountQu
	}
	r.UpdatedAt = time.Now().UTC()
	s.rounds[id] = r
	s.PoolCalls = append(s.PoolCalls, PoolCall{RoundID: id, Side: side, AmountQu: amountQu})
	return nil
}

func (s *RoundStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.Status == domain.RoundStatusResolved && r.UpdatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return page(out, domain.ListOpts{Limit: limit}), nil
}

// WagerStore is an in-memory domain.WagerStore.
type WagerStore struct {
	mu     sync.Mutex
	wagers map[string]domain.FlashWager

	// CreateErr, when set, fails the next Create call.
	CreateErr error
}

// NewWagerStore returns a WagerStore seeded with the given wagers.
func NewWagerStore(seed ...domain.FlashWager) *WagerStore {
	s := &WagerStore{wagers: make(map[string]domain.FlashWager)}
	for _, w := range seed {
		s.wagers[w.ID] = w
	}
	return s
}

var _ domain.WagerStore = (*WagerStore)(nil)

func (s *WagerStore) Create(ctx context.Context, wager domain.FlashWager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		err := s.CreateErr
		s.CreateErr = nil
		return err
	}
	if _, ok := s.wagers[wager.ID]; ok {
		return fmt.Errorf("domaintest: wager %s: %w", wager.ID, domain.ErrAlreadyExists)
	}
	s.wagers[wager.ID] = wager
	return nil
}

func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.FlashWager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wagers[id]
	if !ok {
		return domain.FlashWager{}, fmt.Errorf("domaintest: wager %s: %w", id, domain.ErrNotFound)
	}
	return w, nil
}

func (s *WagerStore) ListByRound(ctx context.Context, roundID string, opts domain.ListOpts) ([]domain.FlashWager, error) {
	return s.list(func(w domain.FlashWager) bool { return w.RoundID == roundID }, opts), nil
}

func (s *WagerStore) ListPending(ctx context.Context, roundID string) ([]domain.FlashWager, error) {
	return s.list(func(w domain.FlashWager) bool {
		return w.RoundID == roundID && w.Status == domain.WagerStatusPending
	}, domain.ListOpts{}), nil
}

func (s *WagerStore) Settle(ctx context.Context, id string, status domain.WagerStatus, payoutQu int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wagers[id]
	if !ok {
		return fmt.Errorf("domaintest: wager %s: %w", id, domain.ErrNotFound)
	}
	if w.Status != domain.WagerStatusPending {
		return fmt.Errorf("domaintest: wager %s already %s: %w", id, w.Status, domain.ErrStaleTransition)
	}
	now := time.Now().UTC()
	w.Status = status
	w.PayoutQu = payoutQu
	w.SettledAt = &now
	s.wagers[id] = w
	return nil
}

func (s *WagerStore) list(keep func(domain.FlashWager) bool, opts domain.ListOpts) []domain.FlashWager {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FlashWager
	for _, w := range s.wagers {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, opts)
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

var _ domain.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, opts), nil
}

func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.AuditEntry
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Events returns the recorded event names in order.
func (s *AuditStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}

// ----- Internal helpers -----

func cloneMarket(m domain.Market) domain.Market {
	opts := make([]domain.MarketOption, len(m.Options))
	copy(opts, m.Options)
	m.Options = opts
	if m.WinningOption != nil {
		w := *m.WinningOption
		m.WinningOption = &w
	}
	return m
}

func page[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
