package domain

import "time"

// Quote is the latest observed price for a pair.
type Quote struct {
	Pair  string
	Price float64
	Ts    time.Time
}

// Bus channel names. Per-entity channels append the entity ID after the dot,
// so subscribers can take a single escrow ("escrow.<betID>") or use the hub's
// wildcard form ("escrow.*").
const (
	ChannelEscrow  = "escrow"
	ChannelMarkets = "markets"
	ChannelRounds  = "rounds"
	ChannelPrices  = "prices"
)

// StreamSettlements is the durable stream settlement events are appended to
// for the settlement processor.
const StreamSettlements = "settlements"

// EscrowEvent is published on every bet status transition.
type EscrowEvent struct {
	Event          string    `json:"event"`
	BetID          string    `json:"betId"`
	EscrowID       string    `json:"escrowId"`
	MarketID       string    `json:"marketId"`
	From           BetStatus `json:"from"`
	To             BetStatus `json:"to"`
	TxID           string    `json:"txId,omitempty"`
	PayoutAmountQu int64     `json:"payoutAmountQu,omitempty"`
	At             time.Time `json:"at"`
}

// RoundEvent is published when a flash round changes phase.
type RoundEvent struct {
	Event      string       `json:"event"`
	RoundID    string       `json:"roundId"`
	Pair       string       `json:"pair"`
	Status     RoundStatus  `json:"status"`
	Outcome    RoundOutcome `json:"outcome,omitempty"`
	OpenPrice  float64      `json:"openPrice,omitempty"`
	ClosePrice float64      `json:"closePrice,omitempty"`
	At         time.Time    `json:"at"`
}

// ServiceStatus is a summary of the daemon's operational state served by the
// status endpoint and the hub's hello frame.
type ServiceStatus struct {
	Mode          string `json:"mode"`
	EngineRunning bool   `json:"engineRunning"`
	OraclePaused  bool   `json:"oraclePaused"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	LiveBets      int64  `json:"liveBets"`
	CurrentRound  string `json:"currentRound,omitempty"`
}
