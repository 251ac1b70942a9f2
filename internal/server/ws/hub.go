// Package ws bridges the signal bus to websocket clients. The hub holds one
// bus subscription per source pattern and fans messages out to the clients
// subscribed to the concrete channel, so a browser tracking one escrow
// receives exactly that escrow's transitions and nothing else. Payloads are
// forwarded as published; they are self-identifying JSON.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qupredict/qupredict/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// hubSource pairs a bus subscription pattern with a resolver that names the
// concrete channel a payload was published on. Broadcast channels resolve to
// themselves; per-entity patterns recover the entity from the payload.
type hubSource struct {
	pattern string
	resolve func(payload []byte) string
}

func hubSources() []hubSource {
	return []hubSource{
		{pattern: domain.ChannelEscrow + ".*", resolve: escrowChannel},
		{pattern: domain.ChannelMarkets},
		{pattern: domain.ChannelRounds},
		{pattern: domain.ChannelPrices + ".*", resolve: priceChannel},
	}
}

// defaultSubs are the channels a fresh client starts subscribed to. Escrow
// channels carry per-bet traffic and are opt-in: a client subscribes to
// "escrow.{betId}" for the bets it is tracking, or "escrow.*" for all.
var defaultSubs = []string{
	domain.ChannelMarkets,
	domain.ChannelRounds,
	domain.ChannelPrices + ".*",
}

// upgrader configures the WebSocket upgrade parameters. Cross-origin policy
// is enforced by the CORS middleware in front of the mux, so the upgrader
// accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusFunc supplies the service status for the hello frame sent to every
// client on connect.
type StatusFunc func(ctx context.Context) domain.ServiceStatus

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed channels
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its channels,
// e.g. {"action":"subscribe","channels":["escrow.bet-1"]}.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// broadcastMsg carries a payload along with its concrete channel so the hub
// routes it only to clients subscribed to that channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub manages the connected WebSocket clients and broadcasts bus messages
// to the clients subscribed to each channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	status     StatusFunc
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub bridging the signal bus to WebSocket clients. status
// may be nil; the hello frame then omits the service snapshot.
func NewHub(bus domain.SignalBus, status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		status:     status,
		logger:     logger,
	}
}

// Run starts the hub's event loop: client registration, unregistration and
// message fan-out. It should be called in a goroutine and exits when the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, src := range hubSources() {
		go h.pump(ctx, src)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						// Send buffer full; drop rather than stall the hub.
						h.logger.Warn("ws: dropping message for slow client",
							slog.String("channel", msg.channel),
						)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pump subscribes to one bus pattern and forwards its messages, resolved to
// their concrete channel, into the hub's broadcast loop.
func (h *Hub) pump(ctx context.Context, src hubSource) {
	msgCh, err := h.bus.Subscribe(ctx, src.pattern)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("pattern", src.pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed", slog.String("pattern", src.pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed",
					slog.String("pattern", src.pattern),
				)
				return
			}
			channel := src.pattern
			if src.resolve != nil {
				if ch := src.resolve(data); ch != "" {
					channel = ch
				}
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, registers the
// client and sends the hello frame.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(defaultSubs)),
	}
	for _, ch := range defaultSubs {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendHello(r.Context())

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ----- Client connection pumps -----

// readPump reads messages from the WebSocket connection. The only inbound
// frames are subscription management requests.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendHello pushes the service status and the client's starting channel set
// so clients can mark the connection healthy before any event flows.
func (c *client) sendHello(ctx context.Context) {
	env := map[string]any{
		"type":     "hello",
		"channels": c.channels(),
	}
	if c.hub.status != nil {
		env["status"] = c.hub.status(ctx)
	}

	msg, err := json.Marshal(env)
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// channels returns the client's current subscriptions in stable order.
func (c *client) channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// isSubscribed checks whether the client is subscribed to the given channel,
// directly or through a trailing-glob subscription like "escrow.*".
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}

	for sub := range c.subs {
		if len(sub) > 0 && sub[len(sub)-1] == '*' {
			prefix := sub[:len(sub)-1]
			if len(channel) >= len(prefix) && channel[:len(prefix)] == prefix {
				return true
			}
		}
	}

	return false
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ----- Channel resolvers -----

// escrowChannel recovers the per-bet channel from a transition payload.
func escrowChannel(payload []byte) string {
	var evt struct {
		BetID string `json:"betId"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil || evt.BetID == "" {
		return ""
	}
	return domain.ChannelEscrow + "." + evt.BetID
}

// priceChannel recovers the per-pair channel from a quote payload.
func priceChannel(payload []byte) string {
	var evt struct {
		Pair string `json:"pair"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Pair == "" {
		return ""
	}
	return domain.ChannelPrices + "." + evt.Pair
}
