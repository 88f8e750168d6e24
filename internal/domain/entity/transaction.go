package entity

import (
	"time"
)

// TransactionKind distinguishes how a transfer was observed on chain
type TransactionKind string

const (
	TransactionKindNative TransactionKind = "native" // Value carried by the transaction itself
	TransactionKindERC20  TransactionKind = "erc20"  // Token transfer decoded from calldata
)

// Transaction is one immutable ledger record the analytics operate on.
// Amount is a floating-point approximation of the transferred value.
type Transaction struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Kind        TransactionKind `json:"kind"`
	Chain       string          `json:"chain,omitempty"` // Network the transfer was observed on
}

// Counterparty returns the address on the other end of the transfer as seen from address
func (t Transaction) Counterparty(address string) string {
	if t.FromAddress == address {
		return t.ToAddress
	}
	return t.FromAddress
}

// ChainTransaction represents a raw Ethereum transaction event from NATS
type ChainTransaction struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"`
	Data        string    `json:"data"`
	BlockNumber string    `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	Timestamp   time.Time `json:"timestamp"`
	GasUsed     string    `json:"gas_used"`
	GasPrice    string    `json:"gas_price"`
	Network     string    `json:"network"`
}
