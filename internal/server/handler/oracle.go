package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/vault"
)

// maxCallbackBody bounds the oracle callback payload.
const maxCallbackBody = 64 << 10

// MarketResolver defines the resolution methods of the market service.
type MarketResolver interface {
	Resolve(ctx context.Context, id string, winningOption int) error
	ResolveFromPrice(ctx context.Context, id string, price float64) (int, error)
}

// CallbackVerifier checks the HMAC signature on an incoming oracle callback.
type CallbackVerifier interface {
	Verify(method, path, body, keyID, timestamp, signature string) error
}

// OracleHandler serves the signed resolution callback. The oracle does not
// hold the dashboard API key; its requests authenticate through the HMAC
// signature instead, so this route is exempt from the auth middleware. A
// handler without a verifier refuses every callback: resolution moves money
// and never runs unsigned.
type OracleHandler struct {
	markets  MarketResolver
	verifier CallbackVerifier
	logger   *slog.Logger
}

// NewOracleHandler creates an OracleHandler. verifier may be nil when no
// callback credentials are configured, which disables the endpoint.
func NewOracleHandler(markets MarketResolver, verifier CallbackVerifier, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		markets:  markets,
		verifier: verifier,
		logger:   logger,
	}
}

// resolutionRequest is the oracle's resolution payload. Basic markets name
// the winning option; price and range markets report the observed price and
// let the service derive the option.
type resolutionRequest struct {
	MarketID      string   `json:"marketId"`
	WinningOption *int     `json:"winningOption"`
	Price         *float64 `json:"price"`
}

// ResolutionCallback records a market resolution reported by the oracle.
// POST /oracle/resolution
func (h *OracleHandler) ResolutionCallback(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution callbacks not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	err = h.verifier.Verify(
		r.Method,
		r.URL.Path,
		string(body),
		r.Header.Get(vault.HeaderKeyID),
		r.Header.Get(vault.HeaderTimestamp),
		r.Header.Get(vault.HeaderSignature),
	)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: oracle callback rejected",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnauthorized, "invalid callback signature")
		return
	}

	var req resolutionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "marketId is required")
		return
	}

	var winning int
	switch {
	case req.Price != nil:
		winning, err = h.markets.ResolveFromPrice(r.Context(), req.MarketID, *req.Price)
	case req.WinningOption != nil:
		winning = *req.WinningOption
		err = h.markets.Resolve(r.Context(), req.MarketID, winning)
	default:
		writeError(w, http.StatusBadRequest, "either winningOption or price is required")
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrInvalidBet):
			writeError(w, http.StatusUnprocessableEntity, "resolution rejected: "+err.Error())
		case errors.Is(err, domain.ErrStaleTransition):
			writeError(w, http.StatusConflict, "market already resolved or cancelled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolution callback failed",
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve market")
		}
		return
	}

	h.logger.InfoContext(r.Context(), "handler: market resolved via oracle callback",
		slog.String("market_id", req.MarketID),
		slog.Int("winning_option", winning),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":      req.MarketID,
		"winningOption": winning,
		"status":        "resolved",
	})
}
