package analytics

import (
	"sort"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

const (
	DefaultTaintMaxHops = 10

	taintMaxPaths      = 1000
	taintFloor         = 0.01
	taintReportedPaths = 20
	taintMixingWindow  = 24 * time.Hour
)

// CalculateTaint estimates how much of source's funds reached target.
//
// Every simple path found (up to 1000) starts with the amount of its first
// hop. At each hop the running amount is multiplied by the hop amount over
// the sender's total outflow in the 24 hours starting at the hop, modelling
// dilution as funds mix with the sender's other transfers. Paths ending above
// 0.01 are kept, largest first, at most 20. The percentage is relative to the
// target's lifetime inflow; because paths may share hops the percentage is
// not bounded by 100.
func CalculateTaint(idx *Index, source, target string, maxHops int) (*entity.TaintFlow, error) {
	if maxHops < 1 {
		return nil, configError("max_hops", "must be at least 1, got %d", maxHops)
	}

	paths, err := FindPaths(idx, entity.PathFinderConfig{
		Source:   source,
		Target:   target,
		MaxDepth: maxHops,
		MaxPaths: taintMaxPaths,
	})
	if err != nil {
		return nil, err
	}

	flow := &entity.TaintFlow{
		Source:        source,
		Target:        target,
		TargetInflow:  idx.TotalInflow(target),
		PathsAnalyzed: len(paths.Paths),
		Paths:         []entity.TaintPath{},
	}

	for _, path := range paths.Paths {
		amount := propagateTaint(idx, path.Transactions)
		if amount > taintFloor {
			flow.Paths = append(flow.Paths, entity.TaintPath{Path: path.Addresses, Amount: amount})
		}
	}

	sort.SliceStable(flow.Paths, func(i, j int) bool {
		return flow.Paths[i].Amount > flow.Paths[j].Amount
	})
	if len(flow.Paths) > taintReportedPaths {
		flow.Paths = flow.Paths[:taintReportedPaths]
	}

	for i := range flow.Paths {
		flow.TotalTainted += flow.Paths[i].Amount
		flow.Paths[i].Percentage = percentageOf(flow.Paths[i].Amount, flow.TargetInflow)
	}
	flow.TaintPercentage = percentageOf(flow.TotalTainted, flow.TargetInflow)

	return flow, nil
}

// propagateTaint walks the hops of one path and returns the tainted amount
// that survives to the end. The amount never exceeds the first hop amount.
func propagateTaint(idx *Index, hops []entity.Transaction) float64 {
	if len(hops) == 0 {
		return 0
	}

	amount := hops[0].Amount
	for _, hop := range hops {
		outflow := windowedOutflow(idx, hop.FromAddress, hop.Timestamp, hop.Timestamp.Add(taintMixingWindow))
		ratio := 1.0
		if outflow > 0 {
			ratio = hop.Amount / outflow
		}
		if ratio > 1 {
			ratio = 1
		}
		amount *= ratio
	}
	return amount
}

func windowedOutflow(idx *Index, address string, start, end time.Time) float64 {
	total := 0.0
	for _, tx := range idx.Outgoing(address) {
		if !tx.Timestamp.Before(start) && !tx.Timestamp.After(end) {
			total += tx.Amount
		}
	}
	return total
}

func percentageOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
