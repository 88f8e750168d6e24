package service

import (
	"context"

	"crypto-flow-forensics/internal/domain/entity"
)

// IndexingService turns raw chain events into ledger transfers
type IndexingService interface {
	// ProcessTransaction decodes and stores a single chain event
	ProcessTransaction(ctx context.Context, tx *entity.ChainTransaction) error

	// ProcessTransactionBatch decodes and stores multiple chain events in one write
	ProcessTransactionBatch(ctx context.Context, transactions []*entity.ChainTransaction) error
}

// TransferDecoder extracts ledger transfers from a raw chain event
type TransferDecoder interface {
	// Decode returns the transfers carried by tx; an event with none yields an empty slice
	Decode(tx *entity.ChainTransaction) ([]entity.Transaction, error)
}

// ForensicsService executes analysis tasks
type ForensicsService interface {
	// Execute runs one task and always answers with a response, never an error
	Execute(ctx context.Context, req *entity.TaskRequest) *entity.TaskResponse
}
