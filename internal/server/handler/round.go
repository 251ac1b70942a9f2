package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/service"
)

// RoundService defines the methods that the round handler requires from the
// service layer.
type RoundService interface {
	Current(ctx context.Context, pair string) (domain.Round, error)
	List(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Round, error)
	PlaceWager(ctx context.Context, req domain.WagerRequest) (service.WagerReceipt, error)
}

// RoundHandler serves flash round HTTP endpoints.
type RoundHandler struct {
	rounds      RoundService
	defaultPair string
	logger      *slog.Logger
}

// NewRoundHandler creates a RoundHandler. defaultPair is used when a request
// names no pair.
func NewRoundHandler(rounds RoundService, defaultPair string, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		rounds:      rounds,
		defaultPair: defaultPair,
		logger:      logger,
	}
}

// placeWagerRequest is the flash wager placement payload.
type placeWagerRequest struct {
	RoundID       string `json:"roundId"`
	PayoutAddress string `json:"payoutAddress"`
	Side          string `json:"side"`
	AmountQu      int64  `json:"amountQu"`
}

// roundResponse is the wire form of a flash round.
type roundResponse struct {
	RoundID    string    `json:"roundId"`
	Pair       string    `json:"pair"`
	OpenPrice  float64   `json:"openPrice"`
	ClosePrice float64   `json:"closePrice,omitempty"`
	OpensAt    time.Time `json:"opensAt"`
	LocksAt    time.Time `json:"locksAt"`
	ClosesAt   time.Time `json:"closesAt"`
	Outcome    string    `json:"outcome,omitempty"`
	UpPoolQu   int64     `json:"upPoolQu"`
	DownPoolQu int64     `json:"downPoolQu"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toRoundResponse(r domain.Round) roundResponse {
	return roundResponse{
		RoundID:    r.ID,
		Pair:       r.Pair,
		OpenPrice:  r.OpenPrice,
		ClosePrice: r.ClosePrice,
		OpensAt:    r.OpensAt,
		LocksAt:    r.LocksAt,
		ClosesAt:   r.ClosesAt,
		Outcome:    string(r.Outcome),
		UpPoolQu:   r.UpPoolQu,
		DownPoolQu: r.DownPoolQu,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// wagerResponse pairs the stored wager with its indicative multiplier at
// placement time.
type wagerResponse struct {
	WagerID       string    `json:"wagerId"`
	RoundID       string    `json:"roundId"`
	PayoutAddress string    `json:"payoutAddress"`
	Side          string    `json:"side"`
	AmountQu      int64     `json:"amountQu"`
	Multiplier    string    `json:"multiplier"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// listRoundsResponse wraps the round listing.
type listRoundsResponse struct {
	Rounds []roundResponse `json:"rounds"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// CurrentRound returns the most recent round for a pair, whatever its phase.
// GET /rounds/current?pair=QU/USDT
func (h *RoundHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		pair = h.defaultPair
	}

	round, err := h.rounds.Current(r.Context(), pair)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no round for pair "+pair)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: current round failed",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch current round")
		return
	}

	writeJSON(w, http.StatusOK, toRoundResponse(round))
}

// ListRounds returns rounds newest first, optionally filtered by pair.
// GET /rounds?pair=QU/USDT&limit=50&offset=0
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	opts := parseListOpts(r)

	rounds, err := h.rounds.List(r.Context(), pair, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rounds failed",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}

	out := make([]roundResponse, len(rounds))
	for i, round := range rounds {
		out[i] = toRoundResponse(round)
	}
	writeJSON(w, http.StatusOK, listRoundsResponse{
		Rounds: out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// PlaceWager joins an open round with an up/down wager. The multiplier in
// the response is indicative: it reflects the pools as this wager left them.
// POST /rounds/wager
func (h *RoundHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	var req placeWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.rounds.PlaceWager(r.Context(), domain.WagerRequest{
		RoundID:       req.RoundID,
		PayoutAddress: req.PayoutAddress,
		Side:          domain.FlashSide(req.Side),
		AmountQu:      req.AmountQu,
	})
	if err != nil {
		if fe, ok := fieldErrorsFrom(err); ok {
			writeFieldErrors(w, fe)
			return
		}
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "round not found")
		case errors.Is(err, domain.ErrRoundLocked):
			writeError(w, http.StatusConflict, "round locked for wagers")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place wager failed",
				slog.String("round_id", req.RoundID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place wager")
		}
		return
	}

	writeJSON(w, http.StatusCreated, wagerResponse{
		WagerID:       receipt.Wager.ID,
		RoundID:       receipt.Wager.RoundID,
		PayoutAddress: receipt.Wager.PayoutAddress,
		Side:          string(receipt.Wager.Side),
		AmountQu:      receipt.Wager.AmountQu,
		Multiplier:    receipt.Multiplier.StringFixed(4),
		Status:        string(receipt.Wager.Status),
		CreatedAt:     receipt.Wager.CreatedAt,
	})
}
