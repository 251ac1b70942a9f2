package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/server/handler"
)

type fakeLiveBets struct {
	bets []domain.Bet
	err  error
}

func (f *fakeLiveBets) ListLive(ctx context.Context) ([]domain.Bet, error) {
	return f.bets, f.err
}

type fakeCurrentRound struct {
	round domain.Round
	err   error
}

func (f *fakeCurrentRound) Current(ctx context.Context, pair string) (domain.Round, error) {
	return f.round, f.err
}

func TestGetStatus(t *testing.T) {
	h := handler.NewStatusHandler(
		"full",
		true,
		time.Now().Add(-90*time.Second),
		"QU/USDT",
		&fakeOracleControl{paused: true},
		&fakeLiveBets{bets: make([]domain.Bet, 3)},
		&fakeCurrentRound{round: domain.Round{ID: "rnd-7"}},
		testLogger(),
	)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "full", body["mode"])
	assert.Equal(t, true, body["engineRunning"])
	assert.Equal(t, true, body["oraclePaused"])
	assert.Equal(t, float64(3), body["liveBets"])
	assert.Equal(t, "rnd-7", body["currentRound"])
	assert.GreaterOrEqual(t, body["uptimeSeconds"], float64(90))
}

func TestStatusSnapshotDegradesOnProbeFailure(t *testing.T) {
	h := handler.NewStatusHandler(
		"api",
		false,
		time.Now(),
		"QU/USDT",
		nil,
		&fakeLiveBets{err: errors.New("db down")},
		&fakeCurrentRound{err: errors.New("db down")},
		testLogger(),
	)

	st := h.Snapshot(context.Background())
	assert.Equal(t, "api", st.Mode)
	assert.False(t, st.EngineRunning)
	assert.False(t, st.OraclePaused)
	assert.Zero(t, st.LiveBets)
	assert.Empty(t, st.CurrentRound)
}

func TestStatusSnapshotNilProbes(t *testing.T) {
	h := handler.NewStatusHandler("api", false, time.Now(), "", nil, nil, nil, testLogger())
	st := h.Snapshot(context.Background())
	assert.Equal(t, "api", st.Mode)
	assert.Zero(t, st.LiveBets)
	assert.Empty(t, st.CurrentRound)
}
