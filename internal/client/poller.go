package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

const defaultPollInterval = 5 * time.Second

// StatusSource yields the current escrow descriptor for a bet. *Client
// satisfies it; tests substitute fakes.
type StatusSource interface {
	BetStatus(ctx context.Context, betID string) (Bet, error)
	CancelBet(ctx context.Context, escrowID string) error
}

// StatusPoller tracks one bet's escrow lifecycle: it polls the status
// endpoint on a fixed interval until a terminal status is observed, then
// stops. Observed statuses only ever move forward — a stale response can
// never regress the tracked state — and at most one request is in flight
// at a time; a tick firing while the previous request is still outstanding
// is skipped.
//
// Poll failures are silent: the next tick retries. Only an explicit
// Refresh surfaces a fetch error, and a failed Refresh leaves the tracked
// state unchanged.
type StatusPoller struct {
	source   StatusSource
	betID    string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	bet      Bet
	inFlight bool
	done     chan struct{} // closed when a terminal status lands
	onChange func(from, to domain.BetStatus, bet Bet)
}

// NewStatusPoller creates a poller seeded with the descriptor returned by
// placement. A zero interval falls back to the 5-second default.
func NewStatusPoller(source StatusSource, bet Bet, interval time.Duration, logger *slog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &StatusPoller{
		source:   source,
		betID:    bet.BetID,
		interval: interval,
		logger:   logger.With(slog.String("component", "status_poller"), slog.String("bet_id", bet.BetID)),
		bet:      bet,
		done:     make(chan struct{}),
	}
}

// OnTransition registers a callback invoked for every observed forward
// transition, including the one landing on a terminal status. Must be set
// before Run.
func (p *StatusPoller) OnTransition(fn func(from, to domain.BetStatus, bet Bet)) {
	p.onChange = fn
}

// Bet returns the most advanced descriptor observed so far.
func (p *StatusPoller) Bet() Bet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bet
}

// Done is closed once a terminal status has been observed.
func (p *StatusPoller) Done() <-chan struct{} {
	return p.done
}

// Run polls until the bet reaches a terminal status or the context is
// cancelled. Safe to call with an already terminal seed; it returns at
// once.
func (p *StatusPoller) Run(ctx context.Context) error {
	if p.Bet().Status.IsTerminal() {
		p.finish()
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-ticker.C:
			p.pollAsync(ctx)
		}
	}
}

// pollAsync starts one fetch unless a previous one is still in flight.
func (p *StatusPoller) pollAsync(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.inFlight = false
			p.mu.Unlock()
		}()

		latest, err := p.source.BetStatus(ctx, p.betID)
		if err != nil {
			p.logger.DebugContext(ctx, "status poll failed", slog.Any("error", err))
			return
		}
		p.apply(latest)
	}()
}

// Refresh fetches the status once, outside the tick cadence. Unlike the
// background polls it reports the fetch error; the tracked state is
// unchanged on failure.
func (p *StatusPoller) Refresh(ctx context.Context) (Bet, error) {
	latest, err := p.source.BetStatus(ctx, p.betID)
	if err != nil {
		return p.Bet(), fmt.Errorf("client: refresh: %w", err)
	}
	p.apply(latest)
	return p.Bet(), nil
}

// Cancel requests a pre-deposit cancel. It is refused locally once a more
// advanced status than awaiting_deposit has been observed; a server-side
// refusal (deposit detected meanwhile) comes back as an *APIError and
// leaves the tracked state unchanged.
func (p *StatusPoller) Cancel(ctx context.Context) error {
	current := p.Bet()
	if current.Status != domain.BetStatusAwaitingDeposit {
		return fmt.Errorf("client: cancel: %w", domain.ErrDepositDetected)
	}
	if err := p.source.CancelBet(ctx, current.EscrowID); err != nil {
		return err
	}
	expired := current
	expired.Status = domain.BetStatusExpired
	p.apply(expired)
	return nil
}

// apply folds a fetched descriptor into the tracked state, keeping status
// monotonic: a response ranking at or below what was already observed is
// discarded.
func (p *StatusPoller) apply(latest Bet) {
	p.mu.Lock()
	from := p.bet.Status
	if latest.Status == from || !from.CanTransition(latest.Status) {
		p.mu.Unlock()
		return
	}
	p.bet = latest
	cb := p.onChange
	p.mu.Unlock()

	p.logger.Debug("escrow status advanced",
		slog.String("from", string(from)), slog.String("to", string(latest.Status)))

	if cb != nil {
		cb(from, latest.Status, latest)
	}
	if latest.Status.IsTerminal() {
		p.finish()
	}
}

func (p *StatusPoller) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
