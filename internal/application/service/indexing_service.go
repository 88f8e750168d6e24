package service

import (
	"context"
	"fmt"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
	"crypto-flow-forensics/internal/domain/service"
	"crypto-flow-forensics/internal/infrastructure/cache"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

// IndexingApplicationService implements IndexingService interface
type IndexingApplicationService struct {
	transferRepo repository.TransferRepository
	decoder      service.TransferDecoder
	cache        *cache.TransferCache
	metrics      *metrics.Indexing
	logger       *logger.Logger
}

// NewIndexingApplicationService creates a new indexing application service.
// cache may be nil when nothing memoises ledger loads.
func NewIndexingApplicationService(
	transferRepo repository.TransferRepository,
	decoder service.TransferDecoder,
	cache *cache.TransferCache,
	m *metrics.Indexing,
	logger *logger.Logger,
) service.IndexingService {
	return &IndexingApplicationService{
		transferRepo: transferRepo,
		decoder:      decoder,
		cache:        cache,
		metrics:      m,
		logger:       logger.WithComponent("indexing-service"),
	}
}

// ProcessTransaction processes a transaction event and indexes it
func (s *IndexingApplicationService) ProcessTransaction(ctx context.Context, tx *entity.ChainTransaction) error {
	return s.ProcessTransactionBatch(ctx, []*entity.ChainTransaction{tx})
}

// ProcessTransactionBatch decodes every event and stores the resulting
// transfers in one write. Events that cannot be decoded are skipped.
func (s *IndexingApplicationService) ProcessTransactionBatch(ctx context.Context, transactions []*entity.ChainTransaction) error {
	s.logger.Debug("Processing transaction batch", zap.Int("count", len(transactions)))

	var transfers []entity.Transaction
	skipped := 0
	for _, tx := range transactions {
		if tx == nil {
			continue
		}
		decoded, err := s.decoder.Decode(tx)
		if err != nil {
			skipped++
			s.logger.Debug("Skipping undecodable transaction",
				zap.String("tx_hash", tx.Hash),
				zap.String("from", tx.From),
				zap.String("to", tx.To),
				zap.Error(err))
			continue
		}
		transfers = append(transfers, decoded...)
	}

	if len(transfers) == 0 {
		s.logger.Debug("No transfers in batch",
			zap.Int("events", len(transactions)),
			zap.Int("skipped", skipped))
		return nil
	}

	if err := s.transferRepo.BatchSaveTransfers(ctx, transfers); err != nil {
		return fmt.Errorf("failed to save transfer batch: %w", err)
	}

	perKind := make(map[entity.TransactionKind]int)
	for _, t := range transfers {
		perKind[t.Kind]++
	}
	for _, kind := range []entity.TransactionKind{entity.TransactionKindNative, entity.TransactionKindERC20} {
		s.metrics.ObserveTransfers(string(kind), perKind[kind])
	}

	invalidated := 0
	if s.cache != nil {
		invalidated = s.cache.InvalidateAddresses(touchedAddresses(transfers))
	}

	s.logger.Info("Indexed transaction batch",
		zap.Int("events", len(transactions)),
		zap.Int("transfers", len(transfers)),
		zap.Int("native", perKind[entity.TransactionKindNative]),
		zap.Int("erc20", perKind[entity.TransactionKindERC20]),
		zap.Int("skipped", skipped),
		zap.Int("cache_invalidated", invalidated))

	return nil
}

// touchedAddresses lists both endpoints of every transfer, once each
func touchedAddresses(transfers []entity.Transaction) []string {
	seen := make(map[string]bool, len(transfers)*2)
	var out []string
	for _, t := range transfers {
		for _, a := range [2]string{t.FromAddress, t.ToAddress} {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}
