package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/server/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAddr(c byte) string {
	return strings.Repeat(string(c), domain.AddressLength)
}

// fakeBetService is an in-test handler.BetService.
type fakeBetService struct {
	placeReq  domain.BetRequest
	placed    domain.Bet
	placeErr  error
	bets      map[string]domain.Bet
	cancelled []string
	cancelErr error
	listed    []domain.Bet
	listErr   error
	listAddr  string
}

func (f *fakeBetService) PlaceBet(ctx context.Context, req domain.BetRequest) (domain.Bet, error) {
	f.placeReq = req
	if f.placeErr != nil {
		return domain.Bet{}, f.placeErr
	}
	return f.placed, nil
}

func (f *fakeBetService) Status(ctx context.Context, betID string) (domain.Bet, error) {
	bet, ok := f.bets[betID]
	if !ok {
		return domain.Bet{}, fmt.Errorf("fake: bet %s: %w", betID, domain.ErrNotFound)
	}
	return bet, nil
}

func (f *fakeBetService) Cancel(ctx context.Context, escrowID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, escrowID)
	return nil
}

func (f *fakeBetService) ListByAddress(ctx context.Context, payoutAddress string, opts domain.ListOpts) ([]domain.Bet, error) {
	f.listAddr = payoutAddress
	return f.listed, f.listErr
}

func sampleBet() domain.Bet {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Bet{
		ID:               "bet-1",
		EscrowID:         "esc-1",
		MarketID:         "mkt-1",
		Option:           0,
		Slots:            5,
		PayoutAddress:    testAddr('A'),
		EscrowAddress:    testAddr('E'),
		ExpectedAmountQu: 50_000,
		Status:           domain.BetStatusAwaitingDeposit,
		ExpiresAt:        now.Add(30 * time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPlaceBetCreated(t *testing.T) {
	svc := &fakeBetService{placed: sampleBet()}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(
		`{"marketId":"mkt-1","payoutAddress":"`+testAddr('A')+`","option":0,"slots":5}`,
	))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "bet-1", body["betId"])
	assert.Equal(t, "esc-1", body["escrowId"])
	assert.Equal(t, testAddr('E'), body["escrowAddress"])
	assert.Equal(t, float64(50_000), body["expectedAmountQu"])
	assert.Equal(t, "awaiting_deposit", body["status"])
	assert.NotEmpty(t, body["expiresAt"])

	assert.Equal(t, "mkt-1", svc.placeReq.MarketID, "request decoded into the service payload")
	assert.Equal(t, int64(5), svc.placeReq.Slots)
}

func TestPlaceBetOmitsUnsetLifecycleFields(t *testing.T) {
	svc := &fakeBetService{placed: sampleBet()}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(
		`{"marketId":"mkt-1","payoutAddress":"`+testAddr('A')+`","option":0,"slots":5}`,
	))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	body := decodeBody(t, rec)
	for _, field := range []string{"depositAmountQu", "depositTxId", "joinBetTxId", "payoutAmountQu", "sweepTxId"} {
		assert.NotContains(t, body, field)
	}
}

func TestPlaceBetValidationFields(t *testing.T) {
	svc := &fakeBetService{placeErr: domain.FieldErrors{
		"payoutAddress": "must be exactly 60 uppercase letters",
		"slots":         "must be at least 1",
	}}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(
		`{"marketId":"mkt-1","payoutAddress":"short","option":0,"slots":0}`,
	))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation failed", body["error"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok, "fields object present")
	assert.Contains(t, fields, "payoutAddress")
	assert.Contains(t, fields, "slots")
}

func TestPlaceBetErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", fmt.Errorf("svc: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{"unknown market", fmt.Errorf("svc: %w", domain.ErrNotFound), http.StatusNotFound},
		{"market closed", fmt.Errorf("svc: %w", domain.ErrMarketClosed), http.StatusConflict},
		{"slot cap", fmt.Errorf("svc: %w", domain.ErrInvalidBet), http.StatusUnprocessableEntity},
		{"storage failure", fmt.Errorf("svc: boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewBetHandler(&fakeBetService{placeErr: tt.err}, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(
				`{"marketId":"mkt-1","payoutAddress":"`+testAddr('A')+`","option":0,"slots":1}`,
			))
			rec := httptest.NewRecorder()
			h.PlaceBet(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPlaceBetMalformedBody(t *testing.T) {
	h := handler.NewBetHandler(&fakeBetService{}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(`{"marketId":`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBetStatus(t *testing.T) {
	settled := sampleBet()
	settled.Status = domain.BetStatusSwept
	settled.DepositAmountQu = 50_000
	settled.DepositTxID = "tx-dep"
	settled.JoinBetTxID = "tx-join"
	settled.PayoutAmountQu = 93_750
	settled.SweepTxID = "tx-sweep"

	svc := &fakeBetService{bets: map[string]domain.Bet{"bet-1": settled}}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/bet/status?id=bet-1", nil)
	rec := httptest.NewRecorder()
	h.BetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "swept", body["status"])
	assert.Equal(t, float64(50_000), body["depositAmountQu"])
	assert.Equal(t, "tx-join", body["joinBetTxId"])
	assert.Equal(t, float64(93_750), body["payoutAmountQu"])
	assert.Equal(t, "tx-sweep", body["sweepTxId"])
}

func TestBetStatusMissingID(t *testing.T) {
	h := handler.NewBetHandler(&fakeBetService{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/bet/status", nil)
	rec := httptest.NewRecorder()
	h.BetStatus(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBetStatusNotFound(t *testing.T) {
	h := handler.NewBetHandler(&fakeBetService{bets: map[string]domain.Bet{}}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/bet/status?id=nope", nil)
	rec := httptest.NewRecorder()
	h.BetStatus(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBet(t *testing.T) {
	svc := &fakeBetService{}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/bet", strings.NewReader(`{"escrowId":"esc-1"}`))
	rec := httptest.NewRecorder()
	h.CancelBet(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "esc-1", body["escrowId"])
	assert.Equal(t, []string{"esc-1"}, svc.cancelled)
}

func TestCancelBetConflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deposit detected", fmt.Errorf("svc: %w", domain.ErrDepositDetected), http.StatusConflict},
		{"already finished", fmt.Errorf("svc: %w", domain.ErrStaleTransition), http.StatusConflict},
		{"unknown escrow", fmt.Errorf("svc: %w", domain.ErrNotFound), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewBetHandler(&fakeBetService{cancelErr: tt.err}, testLogger())
			req := httptest.NewRequest(http.MethodDelete, "/bet", strings.NewReader(`{"escrowId":"esc-1"}`))
			rec := httptest.NewRecorder()
			h.CancelBet(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCancelBetMissingEscrowID(t *testing.T) {
	h := handler.NewBetHandler(&fakeBetService{}, testLogger())
	req := httptest.NewRequest(http.MethodDelete, "/bet", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.CancelBet(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBetsByAddress(t *testing.T) {
	svc := &fakeBetService{listed: []domain.Bet{sampleBet()}}
	h := handler.NewBetHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/bets?address="+testAddr('A')+"&limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListBets(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAddr('A'), svc.listAddr)
	body := decodeBody(t, rec)
	bets, ok := body["bets"].([]any)
	require.True(t, ok)
	require.Len(t, bets, 1)
	assert.Equal(t, float64(10), body["limit"])
}

func TestListBetsRequiresAddress(t *testing.T) {
	h := handler.NewBetHandler(&fakeBetService{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/admin/bets", nil)
	rec := httptest.NewRecorder()
	h.ListBets(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
