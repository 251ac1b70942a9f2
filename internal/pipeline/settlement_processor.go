// Package pipeline runs the background processing attached to settlement:
// the durable-stream consumer that turns settlement events into operator
// notifications, and the cron-scheduled archiver that moves settled records
// to cold storage.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// streamBatch bounds one stream read.
const streamBatch = 100

// idleWait spaces out reads when the bus returned nothing. The redis bus
// already blocks briefly inside StreamRead; this keeps the loop polite over
// non-blocking implementations too.
const idleWait = time.Second

// Notifier is the slice of the notify package the processor needs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementProcessor tails the settlements stream and forwards each
// settlement outcome to the notifier. The engine and the flash scheduler
// append to the stream at the moment they write the outcome, so delivery
// here is at-least-once after the fact and never blocks settlement itself.
type SettlementProcessor struct {
	bus      domain.SignalBus
	notifier Notifier
	lastID   string
	logger   *slog.Logger
}

// NewSettlementProcessor creates a processor starting from the beginning of
// the stream.
func NewSettlementProcessor(bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *SettlementProcessor {
	return &SettlementProcessor{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "settlement_processor")),
	}
}

// Run consumes the stream until the context is cancelled.
func (p *SettlementProcessor) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "settlement processor started")
	defer p.logger.Info("settlement processor stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := p.ProcessOnce(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "stream read failed", slog.Any("error", err))
			n = 0
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleWait):
			}
		}
	}
}

// ProcessOnce reads one batch from the stream and notifies for each entry,
// returning how many entries were consumed. The cursor advances past an
// entry even when its notification failed; a broken webhook must not wedge
// the stream.
func (p *SettlementProcessor) ProcessOnce(ctx context.Context) (int, error) {
	msgs, err := p.bus.StreamRead(ctx, domain.StreamSettlements, p.lastID, streamBatch)
	if err != nil {
		return 0, fmt.Errorf("pipeline: read settlements: %w", err)
	}

	for _, msg := range msgs {
		p.lastID = msg.ID
		event, title, body, ok := describeSettlement(msg.Payload)
		if !ok {
			p.logger.WarnContext(ctx, "unrecognised settlement entry",
				slog.String("stream_id", msg.ID))
			continue
		}
		if err := p.notifier.Notify(ctx, event, title, body); err != nil {
			p.logger.WarnContext(ctx, "settlement notification failed",
				slog.String("stream_id", msg.ID), slog.Any("error", err))
		}
	}
	return len(msgs), nil
}

// describeSettlement turns a stream payload into a notifier event class and
// a human-readable message. Bet outcomes group under "bet_settled", flash
// wager outcomes under "wager_settled".
func describeSettlement(payload []byte) (event, title, body string, ok bool) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", "", "", false
	}
	kind, _ := raw["event"].(string)

	switch {
	case strings.HasPrefix(kind, "bet_"):
		betID, _ := raw["betId"].(string)
		marketID, _ := raw["marketId"].(string)
		to, _ := raw["to"].(string)
		title = "Bet settled"
		body = fmt.Sprintf("bet %s on market %s finished %s", betID, marketID, to)
		if amt, isNum := raw["payoutAmountQu"].(float64); isNum && amt > 0 {
			body += fmt.Sprintf(", payout %d qu", int64(amt))
		}
		return "bet_settled", title, body, true

	case kind == "wager_settled":
		wagerID, _ := raw["wagerId"].(string)
		pair, _ := raw["pair"].(string)
		status, _ := raw["status"].(string)
		title = "Flash wager settled"
		body = fmt.Sprintf("wager %s on %s finished %s", wagerID, pair, status)
		if amt, isNum := raw["payoutQu"].(float64); isNum && amt > 0 {
			body += fmt.Sprintf(", payout %d qu", int64(amt))
		}
		return "wager_settled", title, body, true
	}

	return "", "", "", false
}
