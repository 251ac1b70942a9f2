// Package client is the Go SDK for the qupredict API: a thin HTTP client
// over the daemon's routes plus the pieces a betting front end needs on its
// side of the wire — the escrow status poller, the expiry countdown, and a
// persistence port for the user's payout address.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// Bet is the wire form of an escrow descriptor.
type Bet struct {
	BetID            string           `json:"betId"`
	EscrowID         string           `json:"escrowId"`
	MarketID         string           `json:"marketId"`
	Option           int              `json:"option"`
	Slots            int64            `json:"slots"`
	PayoutAddress    string           `json:"payoutAddress"`
	EscrowAddress    string           `json:"escrowAddress"`
	ExpectedAmountQu int64            `json:"expectedAmountQu"`
	DepositAmountQu  int64            `json:"depositAmountQu,omitempty"`
	DepositTxID      string           `json:"depositTxId,omitempty"`
	JoinBetTxID      string           `json:"joinBetTxId,omitempty"`
	PayoutAmountQu   int64            `json:"payoutAmountQu,omitempty"`
	SweepTxID        string           `json:"sweepTxId,omitempty"`
	Status           domain.BetStatus `json:"status"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// MarketOption is one option of a market with its slot pool.
type MarketOption struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Slots int64  `json:"slots"`
}

// Market is the wire form of a market.
type Market struct {
	MarketID          string         `json:"marketId"`
	Question          string         `json:"question"`
	Description       string         `json:"description,omitempty"`
	Type              string         `json:"type"`
	Options           []MarketOption `json:"options"`
	MinBetQu          int64          `json:"minBetQu"`
	MaxSlotsPerOption int64          `json:"maxSlotsPerOption"`
	OracleFeeBps      int64          `json:"oracleFeeBps"`
	CreatorAddress    string         `json:"creatorAddress"`
	CloseDate         time.Time      `json:"closeDate"`
	EndDate           time.Time      `json:"endDate"`
	Status            string         `json:"status"`
	WinningOption     *int           `json:"winningOption,omitempty"`
	TotalSlots        int64          `json:"totalSlots"`
	TotalPoolQu       int64          `json:"totalPoolQu"`
}

// Round is the wire form of a flash round.
type Round struct {
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
}

// Wager is the wire form of a placed flash wager with its indicative
// multiplier at placement time.
type Wager struct {
	WagerID       string    `json:"wagerId"`
	RoundID       string    `json:"roundId"`
	PayoutAddress string    `json:"payoutAddress"`
	Side          string    `json:"side"`
	AmountQu      int64     `json:"amountQu"`
	Multiplier    string    `json:"multiplier"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// APIError is a server-rejected request: the HTTP status with the response
// body's error message and, for validation failures, the failing fields.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api: %d %s %v", e.StatusCode, e.Message, e.Fields)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client calls the qupredict API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the API at baseURL. apiKey may be empty
// when the server runs without authentication.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PlaceBet validates the request locally and opens an escrow. A payout
// address failing the 60-uppercase-letter check is rejected before any
// network call.
func (c *Client) PlaceBet(ctx context.Context, req domain.BetRequest) (Bet, error) {
	if fe := req.Validate(); !fe.OK() {
		return Bet{}, fe
	}

	body := map[string]any{
		"marketId":      req.MarketID,
		"payoutAddress": req.PayoutAddress,
		"option":        req.Option,
		"slots":         req.Slots,
	}
	var bet Bet
	if err := c.do(ctx, http.MethodPost, "/bet", body, &bet); err != nil {
		return Bet{}, fmt.Errorf("client: place bet: %w", err)
	}
	return bet, nil
}

// BetStatus fetches the current escrow descriptor for a bet.
func (c *Client) BetStatus(ctx context.Context, betID string) (Bet, error) {
	var bet Bet
	path := "/bet/status?id=" + url.QueryEscape(betID)
	if err := c.do(ctx, http.MethodGet, path, nil, &bet); err != nil {
		return Bet{}, fmt.Errorf("client: bet status %s: %w", betID, err)
	}
	return bet, nil
}

// CancelBet requests a pre-deposit cancel of the escrow. The server refuses
// once a deposit has been detected.
func (c *Client) CancelBet(ctx context.Context, escrowID string) error {
	body := map[string]string{"escrowId": escrowID}
	if err := c.do(ctx, http.MethodDelete, "/bet", body, nil); err != nil {
		return fmt.Errorf("client: cancel bet %s: %w", escrowID, err)
	}
	return nil
}

// CreateMarket validates the draft locally and creates a market.
func (c *Client) CreateMarket(ctx context.Context, draft domain.MarketDraft) (Market, error) {
	if fe := draft.Validate(time.Now().UTC()); !fe.OK() {
		return Market{}, fe
	}

	body := map[string]any{
		"question":          draft.Question,
		"description":       draft.Description,
		"type":              string(draft.Type),
		"optionLabels":      draft.OptionLabels,
		"minBetQu":          draft.MinBetQu,
		"maxSlotsPerOption": draft.MaxSlotsPerOption,
		"oracleFeeBps":      draft.OracleFeeBps,
		"resolutionTarget":  draft.ResolutionTarget,
		"resolutionLow":     draft.ResolutionLow,
		"resolutionHigh":    draft.ResolutionHigh,
		"creatorAddress":    draft.CreatorAddress,
		"closeDate":         draft.CloseDate,
		"endDate":           draft.EndDate,
	}
	var market Market
	if err := c.do(ctx, http.MethodPost, "/markets", body, &market); err != nil {
		return Market{}, fmt.Errorf("client: create market: %w", err)
	}
	return market, nil
}

// Market fetches one market by ID.
func (c *Client) Market(ctx context.Context, id string) (Market, error) {
	var market Market
	if err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(id), nil, &market); err != nil {
		return Market{}, fmt.Errorf("client: get market %s: %w", id, err)
	}
	return market, nil
}

// Markets lists markets, optionally filtered by status.
func (c *Client) Markets(ctx context.Context, status string, limit, offset int) ([]Market, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/markets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Markets []Market `json:"markets"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("client: list markets: %w", err)
	}
	return resp.Markets, nil
}

// CurrentRound fetches the latest flash round for a pair; an empty pair
// takes the server's default.
func (c *Client) CurrentRound(ctx context.Context, pair string) (Round, error) {
	path := "/rounds/current"
	if pair != "" {
		path += "?pair=" + url.QueryEscape(pair)
	}
	var round Round
	if err := c.do(ctx, http.MethodGet, path, nil, &round); err != nil {
		return Round{}, fmt.Errorf("client: current round: %w", err)
	}
	return round, nil
}

// PlaceWager validates the request locally and places a flash wager.
func (c *Client) PlaceWager(ctx context.Context, req domain.WagerRequest) (Wager, error) {
	if fe := req.Validate(); !fe.OK() {
		return Wager{}, fe
	}

	body := map[string]any{
		"roundId":       req.RoundID,
		"payoutAddress": req.PayoutAddress,
		"side":          string(req.Side),
		"amountQu":      req.AmountQu,
	}
	var wager Wager
	if err := c.do(ctx, http.MethodPost, "/rounds/wager", body, &wager); err != nil {
		return Wager{}, fmt.Errorf("client: place wager: %w", err)
	}
	return wager, nil
}

// ServiceStatus fetches the daemon's status summary.
func (c *Client) ServiceStatus(ctx context.Context) (domain.ServiceStatus, error) {
	var status domain.ServiceStatus
	if err := c.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return domain.ServiceStatus{}, fmt.Errorf("client: service status: %w", err)
	}
	return status, nil
}

// do runs one request against the API: marshal the body, attach the API
// key, decode either the response into out or the error envelope into an
// *APIError.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError pulls the error envelope out of a non-2xx body. Bodies
// that are not the envelope still yield an APIError with the raw text.
func decodeAPIError(status int, body []byte) error {
	var envelope struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	return &APIError{
		StatusCode: status,
		Message:    envelope.Error,
		Fields:     envelope.Fields,
	}
}
