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

// MarketService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, draft domain.MarketDraft) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context, status domain.MarketStatus) (int64, error)
	Cancel(ctx context.Context, id string) error
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the market creation payload.
type createMarketRequest struct {
	Question          string    `json:"question"`
	Description       string    `json:"description"`
	Type              string    `json:"type"`
	OptionLabels      []string  `json:"optionLabels"`
	MinBetQu          int64     `json:"minBetQu"`
	MaxSlotsPerOption int64     `json:"maxSlotsPerOption"`
	OracleFeeBps      int64     `json:"oracleFeeBps"`
	ResolutionTarget  float64   `json:"resolutionTarget"`
	ResolutionLow     float64   `json:"resolutionLow"`
	ResolutionHigh    float64   `json:"resolutionHigh"`
	CreatorAddress    string    `json:"creatorAddress"`
	CloseDate         time.Time `json:"closeDate"`
	EndDate           time.Time `json:"endDate"`
}

// marketOptionResponse is one option of a market with its slot pool.
type marketOptionResponse struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Slots int64  `json:"slots"`
}

// marketResponse is the wire form of a market.
type marketResponse struct {
	MarketID          string                 `json:"marketId"`
	Question          string                 `json:"question"`
	Description       string                 `json:"description,omitempty"`
	Type              string                 `json:"type"`
	Options           []marketOptionResponse `json:"options"`
	MinBetQu          int64                  `json:"minBetQu"`
	MaxSlotsPerOption int64                  `json:"maxSlotsPerOption"`
	OracleFeeBps      int64                  `json:"oracleFeeBps"`
	ResolutionTarget  float64                `json:"resolutionTarget,omitempty"`
	ResolutionLow     float64                `json:"resolutionLow,omitempty"`
	ResolutionHigh    float64                `json:"resolutionHigh,omitempty"`
	CreatorAddress    string                 `json:"creatorAddress"`
	CloseDate         time.Time              `json:"closeDate"`
	EndDate           time.Time              `json:"endDate"`
	Status            string                 `json:"status"`
	WinningOption     *int                   `json:"winningOption,omitempty"`
	TotalSlots        int64                  `json:"totalSlots"`
	TotalPoolQu       int64                  `json:"totalPoolQu"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

func toMarketResponse(m domain.Market) marketResponse {
	options := make([]marketOptionResponse, len(m.Options))
	for i, opt := range m.Options {
		options[i] = marketOptionResponse{Index: opt.Index, Label: opt.Label, Slots: opt.Slots}
	}
	return marketResponse{
		MarketID:          m.ID,
		Question:          m.Question,
		Description:       m.Description,
		Type:              string(m.Type),
		Options:           options,
		MinBetQu:          m.MinBetQu,
		MaxSlotsPerOption: m.MaxSlotsPerOption,
		OracleFeeBps:      m.OracleFeeBps,
		ResolutionTarget:  m.ResolutionTarget,
		ResolutionLow:     m.ResolutionLow,
		ResolutionHigh:    m.ResolutionHigh,
		CreatorAddress:    m.CreatorAddress,
		CloseDate:         m.CloseDate,
		EndDate:           m.EndDate,
		Status:            string(m.Status),
		WinningOption:     m.WinningOption,
		TotalSlots:        m.TotalSlots(),
		TotalPoolQu:       m.TotalPoolQu(),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets with pagination, optionally filtered by status.
// GET /markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status != "" && status.Rank() < 0 {
		writeError(w, http.StatusBadRequest, "unknown market status "+string(status))
		return
	}
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context(), status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	out := make([]marketResponse, len(markets))
	for i, m := range markets {
		out[i] = toMarketResponse(m)
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

// CreateMarket creates a new market from a JSON draft. Validation problems
// come back field-scoped so the caller can surface every failing input.
// POST /markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	draft := domain.MarketDraft{
		Question:          req.Question,
		Description:       req.Description,
		Type:              domain.MarketType(req.Type),
		OptionLabels:      req.OptionLabels,
		MinBetQu:          req.MinBetQu,
		MaxSlotsPerOption: req.MaxSlotsPerOption,
		OracleFeeBps:      req.OracleFeeBps,
		ResolutionTarget:  req.ResolutionTarget,
		ResolutionLow:     req.ResolutionLow,
		ResolutionHigh:    req.ResolutionHigh,
		CreatorAddress:    req.CreatorAddress,
		CloseDate:         req.CloseDate,
		EndDate:           req.EndDate,
	}

	market, err := h.markets.Create(r.Context(), draft)
	if err != nil {
		if fe, ok := fieldErrorsFrom(err); ok {
			writeFieldErrors(w, fe)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, toMarketResponse(market))
}

// CancelMarket voids a market before resolution. The engine refunds its
// funded escrows on the next pass.
// POST /admin/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if err := h.markets.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrStaleTransition):
			writeError(w, http.StatusConflict, "market already resolved or cancelled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel market")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"marketId": id,
	})
}
