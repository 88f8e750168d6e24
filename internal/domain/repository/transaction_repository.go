package repository

import (
	"context"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

// TransferQuery selects the neighbourhood of an address in the ledger
type TransferQuery struct {
	Address     string `json:"address"`
	Chain       string `json:"chain"`
	TokenFilter string `json:"token_filter"` // Currency to restrict to, empty for all
	MaxHops     int    `json:"max_hops"`
	Limit       int    `json:"limit"`
}

// TransferRepository defines the interface for ledger transfer storage
type TransferRepository interface {
	// BatchSaveTransfers stores transfers, ignoring ones already stored
	BatchSaveTransfers(ctx context.Context, transfers []entity.Transaction) error

	// GetTransfersForAddress loads every transfer within MaxHops of the address
	GetTransfersForAddress(ctx context.Context, query TransferQuery) ([]entity.Transaction, error)

	// GetTransfersByTimeRange retrieves transfers within a time range
	GetTransfersByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]entity.Transaction, error)
}
