package qubic

import "time"

// TxStatus is the gateway-reported state of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxRejected  TxStatus = "rejected"
)

// Balance is a point-in-time ledger balance for an address. LatestInTxID
// names the most recent incoming transfer, when the gateway knows it.
type Balance struct {
	Address      string
	BalanceQu    int64
	Tick         uint64
	LatestInTxID string
}

// Transaction describes a ledger transaction as reported by the gateway.
type Transaction struct {
	TxID          string
	Status        TxStatus
	SourceAddress string
	DestAddress   string
	AmountQu      int64
	Tick          uint64
	Message       string
}

// JoinBetRequest asks the gateway to move an escrow's deposited funds
// into the prediction contract, registering the bet on-chain. The
// gateway re-derives the escrow key from the escrow ID.
type JoinBetRequest struct {
	EscrowID      string `json:"escrowId"`
	EscrowAddress string `json:"escrowAddress"`
	MarketID      string `json:"marketId"`
	Option        int    `json:"option"`
	Slots         int64  `json:"slots"`
	AmountQu      int64  `json:"amountQu"`
}

// TransferRequest asks the gateway to move funds out of an identity it
// controls (payout sweeps, refunds, fee sweeps). FromAddress names the
// debited identity: a deposit escrow address, or a "pool:{marketId}"
// reference for funds held by the prediction contract.
type TransferRequest struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	AmountQu    int64  `json:"amountQu"`
	Reference   string `json:"reference"`
}

// --------------------------------------------------------------------------
// Wire types
// --------------------------------------------------------------------------

type apiBalance struct {
	Address      string `json:"address"`
	BalanceQu    int64  `json:"balanceQu"`
	Tick         uint64 `json:"tick"`
	LatestInTxID string `json:"latestInTxId"`
}

func (b *apiBalance) toBalance() Balance {
	return Balance{
		Address:      b.Address,
		BalanceQu:    b.BalanceQu,
		Tick:         b.Tick,
		LatestInTxID: b.LatestInTxID,
	}
}

type apiTick struct {
	Tick      uint64 `json:"tick"`
	Epoch     uint32 `json:"epoch"`
	Timestamp int64  `json:"timestamp"`
}

type apiSubmitResult struct {
	TxID    string `json:"txId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type apiTransaction struct {
	TxID          string `json:"txId"`
	Status        string `json:"status"`
	SourceAddress string `json:"sourceAddress"`
	DestAddress   string `json:"destAddress"`
	AmountQu      int64  `json:"amountQu"`
	Tick          uint64 `json:"tick"`
	Message       string `json:"message"`
}

func (t *apiTransaction) toTransaction() Transaction {
	return Transaction{
		TxID:          t.TxID,
		Status:        TxStatus(t.Status),
		SourceAddress: t.SourceAddress,
		DestAddress:   t.DestAddress,
		AmountQu:      t.AmountQu,
		Tick:          t.Tick,
		Message:       t.Message,
	}
}

// TickInfo is the gateway's view of the current chain tick.
type TickInfo struct {
	Tick      uint64
	Epoch     uint32
	Timestamp time.Time
}

func (t *apiTick) toTickInfo() TickInfo {
	return TickInfo{
		Tick:      t.Tick,
		Epoch:     t.Epoch,
		Timestamp: time.Unix(t.Timestamp, 0),
	}
}
