package client

import (
	"context"
	"time"
)

// Countdown ticks down the time remaining until an escrow's deposit
// deadline, once per second. It is display state only: hitting zero does
// not touch the bet's status — expiry is authoritative only when the
// server reports it.
type Countdown struct {
	expiresAt time.Time
	onTick    func(remaining time.Duration)
}

// NewCountdown creates a Countdown toward expiresAt. onTick receives the
// remaining duration every second, clamped at zero.
func NewCountdown(expiresAt time.Time, onTick func(remaining time.Duration)) *Countdown {
	return &Countdown{
		expiresAt: expiresAt,
		onTick:    onTick,
	}
}

// Remaining returns the time left until the deadline, clamped at zero.
func (c *Countdown) Remaining(now time.Time) time.Duration {
	if remaining := c.expiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Run ticks until the deadline passes or the context is cancelled. The
// final tick delivers zero.
func (c *Countdown) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			remaining := c.Remaining(now)
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining == 0 {
				return nil
			}
		}
	}
}
