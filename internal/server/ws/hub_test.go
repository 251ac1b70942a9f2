package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/domain/domaintest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEscrowChannelResolver(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"transition event", `{"type":"escrow_transition","betId":"bet-1","status":"deposit_detected"}`, "escrow.bet-1"},
		{"missing bet id", `{"type":"escrow_transition","status":"deposit_detected"}`, ""},
		{"not json", `???`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escrowChannel([]byte(tt.payload)))
		})
	}
}

func TestPriceChannelResolver(t *testing.T) {
	assert.Equal(t, "prices.QU/USDT", priceChannel([]byte(`{"pair":"QU/USDT","price":0.042}`)))
	assert.Empty(t, priceChannel([]byte(`{"price":0.042}`)))
	assert.Empty(t, priceChannel([]byte(`not json`)))
}

func TestClientIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{
		"rounds":       true,
		"escrow.bet-1": true,
		"prices.*":     true,
	}}

	assert.True(t, c.isSubscribed("rounds"))
	assert.True(t, c.isSubscribed("escrow.bet-1"))
	assert.True(t, c.isSubscribed("prices.QU/USDT"), "trailing glob matches by prefix")
	assert.False(t, c.isSubscribed("escrow.bet-2"))
	assert.False(t, c.isSubscribed("markets"))
}

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{"rounds": true}}

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"escrow.bet-1", "markets"}})
	assert.Equal(t, []string{"escrow.bet-1", "markets", "rounds"}, c.channels())

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"rounds"}})
	assert.Equal(t, []string{"escrow.bet-1", "markets"}, c.channels())

	c.handleSubscription(subscribeMsg{Action: "noop", Channels: []string{"rounds"}})
	assert.Equal(t, []string{"escrow.bet-1", "markets"}, c.channels())
}

// startHub runs a hub against the in-memory bus and waits until every source
// pattern is subscribed, so publishes cannot race the pumps.
func startHub(t *testing.T, bus *domaintest.SignalBus, status StatusFunc) (*Hub, context.Context) {
	t.Helper()
	hub := NewHub(bus, status, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	require.Eventually(t, func() bool {
		return bus.Subscribers() >= len(hubSources())
	}, 2*time.Second, 10*time.Millisecond)
	return hub, ctx
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubHelloAndBroadcast(t *testing.T) {
	bus := domaintest.NewSignalBus()
	status := func(ctx context.Context) domain.ServiceStatus {
		return domain.ServiceStatus{Mode: "full", EngineRunning: true}
	}
	hub, ctx := startHub(t, bus, status)
	conn := dialHub(t, hub)

	// The hello frame arrives before any event.
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var hello struct {
		Type     string               `json:"type"`
		Channels []string             `json:"channels"`
		Status   domain.ServiceStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(raw, &hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, []string{"markets", "prices.*", "rounds"}, hello.Channels)
	assert.Equal(t, "full", hello.Status.Mode)
	assert.True(t, hello.Status.EngineRunning)

	// Escrow channels are opt-in, so this event must not reach the client.
	require.NoError(t, bus.Publish(ctx, "escrow.bet-9",
		[]byte(`{"type":"escrow_transition","betId":"bet-9","status":"swept"}`)))

	roundEvent := []byte(`{"type":"round_update","roundId":"rnd-1","status":"locked"}`)
	require.NoError(t, bus.Publish(ctx, "rounds", roundEvent))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(roundEvent), string(raw))
}

func TestHubEscrowOptIn(t *testing.T) {
	bus := domaintest.NewSignalBus()
	hub, ctx := startHub(t, bus, nil)
	conn := dialHub(t, hub)

	// Drain the hello frame, then collect everything else in the background.
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	frames := make(chan []byte, 16)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- msg
		}
	}()

	require.NoError(t, conn.WriteJSON(subscribeMsg{
		Action:   "subscribe",
		Channels: []string{"escrow.bet-1"},
	}))

	// The subscription applies when the read pump processes it, so publish
	// until a frame comes back.
	payload := []byte(`{"type":"escrow_transition","betId":"bet-1","status":"deposit_detected"}`)
	var got []byte
	require.Eventually(t, func() bool {
		require.NoError(t, bus.Publish(ctx, "escrow.bet-1", payload))
		select {
		case got = <-frames:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.JSONEq(t, string(payload), string(got))
}

func TestHubHelloWithoutStatusFunc(t *testing.T) {
	bus := domaintest.NewSignalBus()
	hub, _ := startHub(t, bus, nil)
	conn := dialHub(t, hub)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var hello map[string]any
	require.NoError(t, json.Unmarshal(raw, &hello))
	assert.Equal(t, "hello", hello["type"])
	assert.NotContains(t, hello, "status")
}
