package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
)

type memoryRepository struct {
	mu        sync.Mutex
	saved     []entity.Transaction
	ledger    []entity.Transaction
	queries   []repository.TransferQuery
	saveErr   error
	panicLoad bool
}

func (r *memoryRepository) BatchSaveTransfers(_ context.Context, transfers []entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, transfers...)
	return nil
}

func (r *memoryRepository) GetTransfersForAddress(_ context.Context, query repository.TransferQuery) ([]entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicLoad {
		panic("ledger exploded")
	}
	r.queries = append(r.queries, query)
	return r.ledger, nil
}

func (r *memoryRepository) GetTransfersByTimeRange(_ context.Context, start, end time.Time, _ int) ([]entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Transaction
	for _, t := range r.ledger {
		if !t.Timestamp.Before(start) && !t.Timestamp.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

var errUndecodable = errors.New("undecodable")

// mapDecoder decodes events by hash
type mapDecoder map[string][]entity.Transaction

func (d mapDecoder) Decode(tx *entity.ChainTransaction) ([]entity.Transaction, error) {
	transfers, ok := d[tx.Hash]
	if !ok {
		return nil, errUndecodable
	}
	return transfers, nil
}

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func transfer(id, from, to string, amount float64, minute int) entity.Transaction {
	return entity.Transaction{
		ID:          id,
		Timestamp:   baseTime.Add(time.Duration(minute) * time.Minute),
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Currency:    "ETH",
		Kind:        entity.TransactionKindNative,
	}
}
