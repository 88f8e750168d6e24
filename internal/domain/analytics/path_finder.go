package analytics

import (
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

const (
	DefaultPathMaxDepth = 10
	DefaultMaxPaths     = 100
)

// ValidatePathFinderConfig checks a path search configuration
func ValidatePathFinderConfig(cfg entity.PathFinderConfig) error {
	if cfg.Source == "" {
		return configError("source", "must not be empty")
	}
	if cfg.Target == "" {
		return configError("target", "must not be empty")
	}
	if cfg.MaxDepth < 1 {
		return configError("max_depth", "must be at least 1, got %d", cfg.MaxDepth)
	}
	if cfg.MaxPaths < 1 {
		return configError("max_paths", "must be at least 1, got %d", cfg.MaxPaths)
	}
	return nil
}

type pathFrame struct {
	address string
	next    int // position in the outgoing list still to try
}

// FindPaths enumerates simple paths from cfg.Source to cfg.Target following
// outgoing transfers depth-first, in the input order of each sender's
// transactions. An address never repeats within a path; separate paths may
// share addresses. A branch ends on reaching the target, at MaxDepth hops,
// or when no unvisited neighbour is left. Once MaxPaths paths are found the
// whole search stops, so the paths returned are the first ones discovered,
// not necessarily the shortest.
//
// The search keeps an explicit stack instead of recursing.
func FindPaths(idx *Index, cfg entity.PathFinderConfig) (*entity.PathFinderResult, error) {
	if err := ValidatePathFinderConfig(cfg); err != nil {
		return nil, err
	}

	result := &entity.PathFinderResult{Paths: []entity.TransactionPath{}}

	visited := map[string]bool{cfg.Source: true}
	stack := []pathFrame{{address: cfg.Source}}
	var hops []entity.Transaction

	for len(stack) > 0 && len(result.Paths) < cfg.MaxPaths {
		top := &stack[len(stack)-1]
		depth := len(stack) - 1

		if depth > 0 && top.address == cfg.Target {
			result.Paths = append(result.Paths, buildTransactionPath(hops))
			stack, hops = popFrame(stack, hops, visited)
			continue
		}

		outgoing := idx.Outgoing(top.address)
		if depth >= cfg.MaxDepth || top.next >= len(outgoing) {
			stack, hops = popFrame(stack, hops, visited)
			continue
		}

		tx := outgoing[top.next]
		top.next++

		if visited[tx.ToAddress] {
			continue
		}
		if cfg.Chronological && len(hops) > 0 && tx.Timestamp.Before(hops[len(hops)-1].Timestamp) {
			continue
		}

		visited[tx.ToAddress] = true
		hops = append(hops, tx)
		stack = append(stack, pathFrame{address: tx.ToAddress})
	}

	// drop frames with nothing left to try; anything remaining is unexplored
	for len(stack) > 0 && frameExhausted(idx, stack, cfg.MaxDepth) {
		stack, hops = popFrame(stack, hops, visited)
	}

	result.Statistics = pathStatistics(result.Paths)
	result.Statistics.Truncated = len(stack) > 0

	for i := range result.Paths {
		if result.ShortestPath == nil || result.Paths[i].Hops < result.ShortestPath.Hops {
			shortest := result.Paths[i]
			result.ShortestPath = &shortest
		}
	}

	return result, nil
}

func frameExhausted(idx *Index, stack []pathFrame, maxDepth int) bool {
	top := stack[len(stack)-1]
	return len(stack)-1 >= maxDepth || top.next >= len(idx.Outgoing(top.address))
}

func popFrame(stack []pathFrame, hops []entity.Transaction, visited map[string]bool) ([]pathFrame, []entity.Transaction) {
	top := stack[len(stack)-1]
	delete(visited, top.address)
	stack = stack[:len(stack)-1]
	if len(hops) > 0 {
		hops = hops[:len(hops)-1]
	}
	return stack, hops
}

func buildTransactionPath(hops []entity.Transaction) entity.TransactionPath {
	txs := make([]entity.Transaction, len(hops))
	copy(txs, hops)

	path := entity.TransactionPath{
		Addresses:    make([]string, 0, len(txs)+1),
		Transactions: txs,
		Hops:         len(txs),
	}
	path.Addresses = append(path.Addresses, txs[0].FromAddress)

	for i, tx := range txs {
		path.Addresses = append(path.Addresses, tx.ToAddress)
		path.TotalAmount += tx.Amount
		if i == 0 || tx.Timestamp.Before(path.StartDate) {
			path.StartDate = tx.Timestamp
		}
		if i == 0 || tx.Timestamp.After(path.EndDate) {
			path.EndDate = tx.Timestamp
		}
	}

	if len(txs) > 1 {
		var total time.Duration
		for i := 1; i < len(txs); i++ {
			total += txs[i].Timestamp.Sub(txs[i-1].Timestamp)
		}
		path.AvgDelay = total / time.Duration(len(txs)-1)
	}

	path.SuspicionScore = SuspicionScore(txs)
	return path
}

func pathStatistics(paths []entity.TransactionPath) entity.PathFinderStatistics {
	stats := entity.PathFinderStatistics{TotalPaths: len(paths)}
	if len(paths) == 0 {
		return stats
	}

	totalHops := 0
	totalSuspicion := 0.0
	for i, p := range paths {
		if i == 0 || p.Hops < stats.ShortestHops {
			stats.ShortestHops = p.Hops
		}
		if p.Hops > stats.LongestHops {
			stats.LongestHops = p.Hops
		}
		if p.SuspicionScore > stats.MaxSuspicion {
			stats.MaxSuspicion = p.SuspicionScore
		}
		totalHops += p.Hops
		totalSuspicion += p.SuspicionScore
		stats.TotalAmountOnPaths += p.TotalAmount
	}
	stats.AverageHops = float64(totalHops) / float64(len(paths))
	stats.AverageSuspicion = totalSuspicion / float64(len(paths))
	return stats
}
