package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/domain/domaintest"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type capturedNote struct {
	event, title, body string
}

type fakeNotifier struct {
	notes []capturedNote
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.notes = append(f.notes, capturedNote{event, title, message})
	return nil
}

func appendJSON(t *testing.T, bus *domaintest.SignalBus, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, bus.StreamAppend(context.Background(), domain.StreamSettlements, payload))
}

func TestProcessOnceNotifiesBetAndWagerOutcomes(t *testing.T) {
	bus := domaintest.NewSignalBus()
	notifier := &fakeNotifier{}
	p := NewSettlementProcessor(bus, notifier, testLogger)

	appendJSON(t, bus, map[string]any{
		"event":          "bet_swept",
		"betId":          "bet-1",
		"marketId":       "mkt-1",
		"to":             "swept",
		"payoutAmountQu": 108750,
	})
	appendJSON(t, bus, map[string]any{
		"event":    "wager_settled",
		"wagerId":  "wager-1",
		"pair":     "QU/USDT",
		"status":   "won",
		"payoutQu": 1970,
	})

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, notifier.notes, 2)
	assert.Equal(t, "bet_settled", notifier.notes[0].event)
	assert.Contains(t, notifier.notes[0].body, "bet-1")
	assert.Contains(t, notifier.notes[0].body, "108750")
	assert.Equal(t, "wager_settled", notifier.notes[1].event)
	assert.Contains(t, notifier.notes[1].body, "QU/USDT")
}

func TestProcessOnceAdvancesPastUnknownEntries(t *testing.T) {
	bus := domaintest.NewSignalBus()
	notifier := &fakeNotifier{}
	p := NewSettlementProcessor(bus, notifier, testLogger)

	appendJSON(t, bus, map[string]any{"event": "something_else"})
	appendJSON(t, bus, map[string]any{
		"event": "bet_lost", "betId": "bet-2", "marketId": "mkt-1", "to": "lost",
	})

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "bet_settled", notifier.notes[0].event)

	// The cursor does not re-deliver consumed entries.
	n, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, notifier.notes, 1)
}
