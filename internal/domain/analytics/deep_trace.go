package analytics

import (
	"crypto-flow-forensics/internal/domain/entity"
)

type edgeKey struct {
	from string
	to   string
}

type traceItem struct {
	address string
	depth   int
}

// ValidateDeepTraceConfig checks a trace configuration before any work is done
func ValidateDeepTraceConfig(cfg entity.DeepTraceConfig) error {
	if cfg.StartAddress == "" {
		return configError("start_address", "must not be empty")
	}
	if !cfg.Direction.IsValid() {
		return configError("direction", "unknown value %q, expected inflow, outflow or both", cfg.Direction)
	}
	if cfg.MaxDepth < 1 {
		return configError("max_depth", "must be at least 1, got %d", cfg.MaxDepth)
	}
	if cfg.MinAmount != nil && *cfg.MinAmount < 0 {
		return configError("min_amount", "must not be negative, got %v", *cfg.MinAmount)
	}
	if cfg.TimeWindow != nil && cfg.TimeWindow.End.Before(cfg.TimeWindow.Start) {
		return configError("time_window", "end %s is before start %s", cfg.TimeWindow.End, cfg.TimeWindow.Start)
	}
	return nil
}

// DeepTrace explores the graph breadth-first from cfg.StartAddress.
//
// Depth is fixed at first visit, so every address gets the shallowest layer
// that reached it. MaxDepth counts node layers: nodes are assigned depths
// 0..MaxDepth-1 and the last layer is recorded but never expanded.
//
// With IncludeCycles off, a transaction leading back to an address visited
// before the current expansion is dropped entirely; its amount is not added
// to any edge. Edge volume can therefore undercount the true flow when the
// data has cycles. Repeat transfers to a counterparty first reached in the
// same expansion are not cycles and all accumulate on the edge.
// A transaction is accounted at most once per trace even when both of its
// endpoints are expanded.
func DeepTrace(idx *Index, cfg entity.DeepTraceConfig) (*entity.DeepTraceResult, error) {
	if err := ValidateDeepTraceConfig(cfg); err != nil {
		return nil, err
	}

	nodes := make(map[string]*entity.DeepTraceNode)
	nodeOrder := []string{cfg.StartAddress}
	nodes[cfg.StartAddress] = &entity.DeepTraceNode{Address: cfg.StartAddress}

	edges := make(map[edgeKey]*entity.DeepTraceEdge)
	var edgeOrder []edgeKey

	visited := map[string]bool{cfg.StartAddress: true}
	accounted := make(map[int]bool)
	stats := entity.DeepTraceStatistics{}

	queue := []traceItem{{address: cfg.StartAddress, depth: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth+1 >= cfg.MaxDepth {
			continue
		}

		// addresses first reached while expanding item
		reached := make(map[string]bool)

		for _, pos := range traceCandidates(idx, item.address, cfg.Direction) {
			if accounted[pos] {
				// already taken from its other endpoint
				continue
			}
			tx := idx.transactions[pos]
			stats.TransactionsExamined++

			if !passesTraceFilters(tx, cfg) {
				stats.TransactionsSkipped++
				continue
			}

			next := tx.Counterparty(item.address)
			if !cfg.IncludeCycles && visited[next] && !reached[next] {
				stats.TransactionsSkipped++
				continue
			}

			node, ok := nodes[next]
			if !ok {
				node = &entity.DeepTraceNode{Address: next, Depth: item.depth + 1}
				nodes[next] = node
				nodeOrder = append(nodeOrder, next)
			}

			accounted[pos] = true
			touchNode(node, tx)
			if next != item.address {
				touchNode(nodes[item.address], tx)
			}

			key := edgeKey{from: tx.FromAddress, to: tx.ToAddress}
			edge, ok := edges[key]
			if !ok {
				edge = &entity.DeepTraceEdge{
					FromAddress: tx.FromAddress,
					ToAddress:   tx.ToAddress,
					FirstTx:     tx.Timestamp,
					LastTx:      tx.Timestamp,
				}
				edges[key] = edge
				edgeOrder = append(edgeOrder, key)
			}
			edge.Amount += tx.Amount
			edge.Count++
			if tx.Timestamp.Before(edge.FirstTx) {
				edge.FirstTx = tx.Timestamp
			}
			if tx.Timestamp.After(edge.LastTx) {
				edge.LastTx = tx.Timestamp
			}

			if !visited[next] {
				visited[next] = true
				reached[next] = true
				if item.depth+2 < cfg.MaxDepth {
					queue = append(queue, traceItem{address: next, depth: item.depth + 1})
				}
			}
		}
	}

	result := &entity.DeepTraceResult{
		Nodes: make([]entity.DeepTraceNode, 0, len(nodeOrder)),
		Edges: make([]entity.DeepTraceEdge, 0, len(edgeOrder)),
	}
	for _, address := range nodeOrder {
		node := nodes[address]
		result.Nodes = append(result.Nodes, *node)
		if node.Depth > stats.MaxDepthReached {
			stats.MaxDepthReached = node.Depth
		}
	}
	for _, key := range edgeOrder {
		edge := edges[key]
		result.Edges = append(result.Edges, *edge)
		stats.TotalVolume += edge.Amount
	}
	stats.TotalNodes = len(result.Nodes)
	stats.TotalEdges = len(result.Edges)
	result.Statistics = stats

	return result, nil
}

// traceCandidates lists the positions of the transactions to examine at
// address. For both directions a self transfer appears in both lists and is
// returned once.
func traceCandidates(idx *Index, address string, direction entity.TraceDirection) []int {
	switch direction {
	case entity.TraceDirectionOutflow:
		return idx.forwardPos[address]
	case entity.TraceDirectionInflow:
		return idx.reversePos[address]
	}

	out := idx.forwardPos[address]
	in := idx.reversePos[address]
	candidates := make([]int, 0, len(out)+len(in))
	candidates = append(candidates, out...)
	for _, pos := range in {
		if tx := idx.transactions[pos]; tx.FromAddress == tx.ToAddress {
			continue
		}
		candidates = append(candidates, pos)
	}
	return candidates
}

func passesTraceFilters(tx entity.Transaction, cfg entity.DeepTraceConfig) bool {
	if cfg.MinAmount != nil && tx.Amount < *cfg.MinAmount {
		return false
	}
	if cfg.TimeWindow != nil && !cfg.TimeWindow.Contains(tx.Timestamp) {
		return false
	}
	return true
}

func touchNode(node *entity.DeepTraceNode, tx entity.Transaction) {
	node.TotalVolume += tx.Amount
	node.TransactionCount++
	if node.FirstSeen.IsZero() || tx.Timestamp.Before(node.FirstSeen) {
		node.FirstSeen = tx.Timestamp
	}
	if tx.Timestamp.After(node.LastSeen) {
		node.LastSeen = tx.Timestamp
	}
}
