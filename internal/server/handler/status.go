package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// OracleState reports whether the price feed is paused.
type OracleState interface {
	Paused() bool
}

// LiveBetCounter lists the bets still moving through the escrow lifecycle.
type LiveBetCounter interface {
	ListLive(ctx context.Context) ([]domain.Bet, error)
}

// CurrentRoundFinder returns the most recent flash round for a pair.
type CurrentRoundFinder interface {
	Current(ctx context.Context, pair string) (domain.Round, error)
}

// StatusHandler serves the daemon's operational snapshot. Probe failures
// degrade the snapshot instead of failing the request: a status endpoint
// that 500s while the database hiccups tells operators nothing.
type StatusHandler struct {
	mode          string
	engineRunning bool
	startedAt     time.Time
	pair          string
	oracle        OracleState
	bets          LiveBetCounter
	rounds        CurrentRoundFinder
	logger        *slog.Logger
}

// NewStatusHandler creates a StatusHandler. oracle, bets and rounds may each
// be nil when the running mode does not carry that component.
func NewStatusHandler(
	mode string,
	engineRunning bool,
	startedAt time.Time,
	pair string,
	oracle OracleState,
	bets LiveBetCounter,
	rounds CurrentRoundFinder,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		mode:          mode,
		engineRunning: engineRunning,
		startedAt:     startedAt,
		pair:          pair,
		oracle:        oracle,
		bets:          bets,
		rounds:        rounds,
		logger:        logger,
	}
}

// Snapshot assembles the current service status. Also used by the websocket
// hub for its hello frame.
func (h *StatusHandler) Snapshot(ctx context.Context) domain.ServiceStatus {
	st := domain.ServiceStatus{
		Mode:          h.mode,
		EngineRunning: h.engineRunning,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if st.UptimeSeconds < 0 {
		st.UptimeSeconds = 0
	}

	if h.oracle != nil {
		st.OraclePaused = h.oracle.Paused()
	}
	if h.bets != nil {
		live, err := h.bets.ListLive(ctx)
		if err != nil {
			h.logger.DebugContext(ctx, "handler: status live bet probe failed",
				slog.String("error", err.Error()),
			)
		} else {
			st.LiveBets = int64(len(live))
		}
	}
	if h.rounds != nil && h.pair != "" {
		round, err := h.rounds.Current(ctx, h.pair)
		if err == nil {
			st.CurrentRound = round.ID
		}
	}
	return st
}

// GetStatus responds with the current service status.
// GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot(r.Context()))
}
