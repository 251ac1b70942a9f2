package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/client"
	"github.com/qupredict/qupredict/internal/domain"
)

const validAddress = "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGH"

func TestPlaceBetRejectsBadAddressBeforeAnyNetworkCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the server")
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "", time.Second)

	// 59 characters: one short of the address contract.
	_, err := c.PlaceBet(context.Background(), domain.BetRequest{
		MarketID:      "mkt-1",
		PayoutAddress: validAddress[:59],
		Option:        0,
		Slots:         5,
	})

	var fe domain.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "payoutAddress")
}

func TestPlaceBetDecodesDescriptor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bet", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mkt-1", body["marketId"])
		assert.Equal(t, float64(5), body["slots"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"betId":            "bet-1",
			"escrowId":         "esc-1",
			"marketId":         "mkt-1",
			"escrowAddress":    validAddress,
			"expectedAmountQu": 50000,
			"status":           "awaiting_deposit",
			"expiresAt":        time.Now().UTC().Add(30 * time.Minute),
		})
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "secret", time.Second)

	bet, err := c.PlaceBet(context.Background(), domain.BetRequest{
		MarketID:      "mkt-1",
		PayoutAddress: validAddress,
		Option:        0,
		Slots:         5,
	})
	require.NoError(t, err)
	assert.Equal(t, "bet-1", bet.BetID)
	assert.Equal(t, int64(50000), bet.ExpectedAmountQu)
	assert.Equal(t, domain.BetStatusAwaitingDeposit, bet.Status)
}

func TestServerRejectionDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"deposit already detected"}`))
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "", time.Second)

	err := c.CancelBet(context.Background(), "esc-1")
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "deposit already detected", apiErr.Message)
}

func TestValidationRejectionCarriesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"validation failed","fields":{"question":"must be 10-100 characters"}}`))
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "", time.Second)

	// Locally valid draft; the server still gets the final say.
	_, err := c.CreateMarket(context.Background(), domain.MarketDraft{
		Question:          "Will the price close above the target?",
		Type:              domain.MarketTypePrice,
		ResolutionTarget:  5,
		MinBetQu:          10000,
		MaxSlotsPerOption: 100,
		CreatorAddress:    validAddress,
		CloseDate:         time.Now().UTC().Add(time.Hour),
		EndDate:           time.Now().UTC().Add(2 * time.Hour),
	})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "must be 10-100 characters", apiErr.Fields["question"])
}

func TestMarketsUnwrapsListEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"markets": []map[string]any{
				{"marketId": "mkt-1", "question": "Q1", "status": "active"},
				{"marketId": "mkt-2", "question": "Q2", "status": "active"},
			},
			"total": 2, "limit": 50, "offset": 0,
		})
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "", time.Second)

	markets, err := c.Markets(context.Background(), "active", 0, 0)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "mkt-2", markets[1].MarketID)
}

func TestNonJSONErrorBodyIsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, "", time.Second)

	_, err := c.BetStatus(context.Background(), "bet-1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.True(t, strings.Contains(apiErr.Message, "upstream exploded"))
}
