package database

import (
	"context"
	"fmt"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/metrics"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const (
	maxNeighborhoodHops = 6
	defaultQueryLimit   = 5000
)

const batchSaveTransfersQuery = `
	UNWIND $transfers AS t
	MERGE (from:Address {address: t.from_address})
	MERGE (to:Address {address: t.to_address})
	MERGE (from)-[r:TRANSFER {id: t.id}]->(to)
	ON CREATE SET
		r.amount = t.amount,
		r.currency = t.currency,
		r.kind = t.kind,
		r.chain = t.chain,
		r.timestamp = t.timestamp
`

const transfersByTimeRangeQuery = `
	MATCH (from:Address)-[r:TRANSFER]->(to:Address)
	WHERE r.timestamp >= $start AND r.timestamp <= $end
	RETURN r.id AS id, from.address AS from_address, to.address AS to_address,
		r.amount AS amount, r.currency AS currency, r.kind AS kind, r.chain AS chain, r.timestamp AS timestamp
	ORDER BY r.timestamp, r.id
	LIMIT $limit
`

// Neo4JTransferRepository stores the ledger as Address nodes joined by TRANSFER relationships
type Neo4JTransferRepository struct {
	client  *Neo4JClient
	metrics *metrics.Repository
	logger  *logger.Logger
}

// NewNeo4JTransferRepository creates a new Neo4J transfer repository
func NewNeo4JTransferRepository(client *Neo4JClient, m *metrics.Repository, logger *logger.Logger) repository.TransferRepository {
	return &Neo4JTransferRepository{
		client:  client,
		metrics: m,
		logger:  logger.WithComponent("neo4j-transfer-repo"),
	}
}

// BatchSaveTransfers merges transfers by id, so replaying a batch is harmless
func (r *Neo4JTransferRepository) BatchSaveTransfers(ctx context.Context, transfers []entity.Transaction) (err error) {
	if len(transfers) == 0 {
		return nil
	}
	defer func(started time.Time) { r.metrics.Observe("batch_save_transfers", err, started) }(time.Now())

	rows := make([]map[string]any, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, transferParams(t))
	}

	session := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, batchSaveTransfersQuery, map[string]any{"transfers": rows})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		r.logger.Error("Failed to save transfers", zap.Int("count", len(transfers)), zap.Error(err))
		return fmt.Errorf("failed to save transfers: %w", err)
	}

	r.logger.Debug("Saved transfers", zap.Int("count", len(transfers)))
	return nil
}

// GetTransfersForAddress loads the transfers on any path of up to MaxHops
// relationships around the address, in either direction
func (r *Neo4JTransferRepository) GetTransfersForAddress(ctx context.Context, query repository.TransferQuery) (transfers []entity.Transaction, err error) {
	defer func(started time.Time) { r.metrics.Observe("get_transfers_for_address", err, started) }(time.Now())

	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	transfers, err = r.collect(ctx, neighborhoodQuery(query.MaxHops), map[string]any{
		"address":  query.Address,
		"currency": query.TokenFilter,
		"chain":    query.Chain,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers for address %s: %w", query.Address, err)
	}
	return transfers, nil
}

// GetTransfersByTimeRange retrieves transfers within a time range
func (r *Neo4JTransferRepository) GetTransfersByTimeRange(ctx context.Context, start, end time.Time, limit int) (transfers []entity.Transaction, err error) {
	defer func(started time.Time) { r.metrics.Observe("get_transfers_by_time_range", err, started) }(time.Now())

	if limit <= 0 {
		limit = defaultQueryLimit
	}

	transfers, err = r.collect(ctx, transfersByTimeRangeQuery, map[string]any{
		"start": start,
		"end":   end,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers by time range: %w", err)
	}
	return transfers, nil
}

func (r *Neo4JTransferRepository) collect(ctx context.Context, query string, params map[string]any) ([]entity.Transaction, error) {
	session := r.client.NewSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		var transfers []entity.Transaction
		for result.Next(ctx) {
			t, err := recordToTransfer(result.Record())
			if err != nil {
				return nil, err
			}
			transfers = append(transfers, t)
		}
		return transfers, result.Err()
	})
	if err != nil {
		return nil, err
	}

	transfers, _ := out.([]entity.Transaction)
	return transfers, nil
}

// neighborhoodQuery builds the neighbourhood query; Cypher does not accept a
// parameter as a variable-length bound so hops is clamped and inlined
func neighborhoodQuery(hops int) string {
	if hops < 1 {
		hops = 1
	}
	if hops > maxNeighborhoodHops {
		hops = maxNeighborhoodHops
	}

	return fmt.Sprintf(`
	MATCH p = (:Address {address: $address})-[:TRANSFER*1..%d]-(:Address)
	UNWIND relationships(p) AS r
	WITH DISTINCT r
	WHERE ($currency = '' OR r.currency = $currency) AND ($chain = '' OR r.chain = $chain)
	RETURN r.id AS id, startNode(r).address AS from_address, endNode(r).address AS to_address,
		r.amount AS amount, r.currency AS currency, r.kind AS kind, r.chain AS chain, r.timestamp AS timestamp
	ORDER BY r.timestamp, r.id
	LIMIT $limit
`, hops)
}

func transferParams(t entity.Transaction) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"from_address": t.FromAddress,
		"to_address":   t.ToAddress,
		"amount":       t.Amount,
		"currency":     t.Currency,
		"kind":         string(t.Kind),
		"chain":        t.Chain,
		"timestamp":    t.Timestamp.UTC(),
	}
}

func recordToTransfer(record *neo4j.Record) (entity.Transaction, error) {
	values := record.AsMap()

	var t entity.Transaction
	var ok bool
	if t.ID, ok = values["id"].(string); !ok {
		return t, fmt.Errorf("transfer record has no id")
	}
	if t.FromAddress, ok = values["from_address"].(string); !ok {
		return t, fmt.Errorf("transfer %s has no from_address", t.ID)
	}
	if t.ToAddress, ok = values["to_address"].(string); !ok {
		return t, fmt.Errorf("transfer %s has no to_address", t.ID)
	}

	switch amount := values["amount"].(type) {
	case float64:
		t.Amount = amount
	case int64:
		t.Amount = float64(amount)
	default:
		return t, fmt.Errorf("transfer %s has invalid amount %v", t.ID, values["amount"])
	}

	ts, ok := values["timestamp"].(time.Time)
	if !ok {
		return t, fmt.Errorf("transfer %s has invalid timestamp %v", t.ID, values["timestamp"])
	}
	t.Timestamp = ts.UTC()

	t.Currency, _ = values["currency"].(string)
	kind, _ := values["kind"].(string)
	t.Kind = entity.TransactionKind(kind)
	t.Chain, _ = values["chain"].(string)

	return t, nil
}
