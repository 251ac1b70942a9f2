package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// BetService defines the methods that the bet handler requires from the
// service layer.
type BetService interface {
	PlaceBet(ctx context.Context, req domain.BetRequest) (domain.Bet, error)
	Status(ctx context.Context, betID string) (domain.Bet, error)
	Cancel(ctx context.Context, escrowID string) error
	ListByAddress(ctx context.Context, payoutAddress string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet and escrow HTTP endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the bet placement payload.
type placeBetRequest struct {
	MarketID      string `json:"marketId"`
	PayoutAddress string `json:"payoutAddress"`
	Option        int    `json:"option"`
	Slots         int64  `json:"slots"`
}

// cancelBetRequest names the escrow a pre-deposit cancel targets.
type cancelBetRequest struct {
	EscrowID string `json:"escrowId"`
}

// betResponse is the full escrow descriptor. The transaction and amount
// fields stay absent until the lifecycle stage that sets them.
type betResponse struct {
	BetID            string    `json:"betId"`
	EscrowID         string    `json:"escrowId"`
	MarketID         string    `json:"marketId"`
	Option           int       `json:"option"`
	Slots            int64     `json:"slots"`
	PayoutAddress    string    `json:"payoutAddress"`
	EscrowAddress    string    `json:"escrowAddress"`
	ExpectedAmountQu int64     `json:"expectedAmountQu"`
	DepositAmountQu  int64     `json:"depositAmountQu,omitempty"`
	DepositTxID      string    `json:"depositTxId,omitempty"`
	JoinBetTxID      string    `json:"joinBetTxId,omitempty"`
	PayoutAmountQu   int64     `json:"payoutAmountQu,omitempty"`
	SweepTxID        string    `json:"sweepTxId,omitempty"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toBetResponse(b domain.Bet) betResponse {
	return betResponse{
		BetID:            b.ID,
		EscrowID:         b.EscrowID,
		MarketID:         b.MarketID,
		Option:           b.Option,
		Slots:            b.Slots,
		PayoutAddress:    b.PayoutAddress,
		EscrowAddress:    b.EscrowAddress,
		ExpectedAmountQu: b.ExpectedAmountQu,
		DepositAmountQu:  b.DepositAmountQu,
		DepositTxID:      b.DepositTxID,
		JoinBetTxID:      b.JoinBetTxID,
		PayoutAmountQu:   b.PayoutAmountQu,
		SweepTxID:        b.SweepTxID,
		Status:           string(b.Status),
		ExpiresAt:        b.ExpiresAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// PlaceBet reserves slots on a market and opens an escrow awaiting its
// deposit. The response carries the one-time deposit address, the expected
// amount and the expiry deadline.
// POST /bet
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), domain.BetRequest{
		MarketID:      req.MarketID,
		PayoutAddress: req.PayoutAddress,
		Option:        req.Option,
		Slots:         req.Slots,
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
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketClosed):
			writeError(w, http.StatusConflict, "market closed for betting")
		case errors.Is(err, domain.ErrInvalidBet):
			writeError(w, http.StatusUnprocessableEntity, "bet rejected: "+err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toBetResponse(bet))
}

// BetStatus returns the current escrow descriptor for a bet. Polling clients
// call this on a fixed tick until they observe a terminal status.
// GET /bet/status?id=...
func (h *BetHandler) BetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id query parameter")
		return
	}

	bet, err := h.bets.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: bet status failed",
			slog.String("bet_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch bet status")
		return
	}

	writeJSON(w, http.StatusOK, toBetResponse(bet))
}

// CancelBet voids an escrow that is still awaiting its deposit. Once a
// deposit has been detected the request is refused with a conflict.
// DELETE /bet
func (h *BetHandler) CancelBet(w http.ResponseWriter, r *http.Request) {
	var req cancelBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EscrowID == "" {
		writeError(w, http.StatusBadRequest, "escrowId is required")
		return
	}

	if err := h.bets.Cancel(r.Context(), req.EscrowID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "escrow not found")
		case errors.Is(err, domain.ErrDepositDetected):
			writeError(w, http.StatusConflict, "deposit already detected")
		case errors.Is(err, domain.ErrStaleTransition):
			writeError(w, http.StatusConflict, "escrow already finished")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel bet failed",
				slog.String("escrow_id", req.EscrowID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel bet")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"escrowId": req.EscrowID,
	})
}

// listBetsResponse wraps the admin bet listing.
type listBetsResponse struct {
	Bets   []betResponse `json:"bets"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListBets returns the bets placed with a payout address, newest first.
// Serves operator support lookups.
// GET /admin/bets?address=...&limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address query parameter")
		return
	}
	opts := parseListOpts(r)

	bets, err := h.bets.ListByAddress(r.Context(), address, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	out := make([]betResponse, len(bets))
	for i, b := range bets {
		out[i] = toBetResponse(b)
	}
	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
