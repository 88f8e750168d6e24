package entity

import (
	"time"
)

// TraceDirection selects which edges a deep trace follows
type TraceDirection string

const (
	TraceDirectionInflow  TraceDirection = "inflow"  // Follow incoming transfers only
	TraceDirectionOutflow TraceDirection = "outflow" // Follow outgoing transfers only
	TraceDirectionBoth    TraceDirection = "both"    // Follow transfers in either direction
)

// IsValid reports whether the direction is one of the known values
func (d TraceDirection) IsValid() bool {
	switch d {
	case TraceDirectionInflow, TraceDirectionOutflow, TraceDirectionBoth:
		return true
	default:
		return false
	}
}

// TimeWindow bounds transactions by timestamp, both ends inclusive
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether ts lies inside the window
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// DeepTraceConfig configures a bounded breadth-first trace
type DeepTraceConfig struct {
	StartAddress  string         `json:"start_address"`
	Direction     TraceDirection `json:"direction"`
	MaxDepth      int            `json:"max_depth"`
	MinAmount     *float64       `json:"min_amount,omitempty"`
	TimeWindow    *TimeWindow    `json:"time_window,omitempty"`
	IncludeCycles bool           `json:"include_cycles"`
}

// DeepTraceNode is an address reached during a trace
type DeepTraceNode struct {
	Address          string    `json:"address"`
	Depth            int       `json:"depth"`
	TotalVolume      float64   `json:"total_volume"`
	TransactionCount int       `json:"transaction_count"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// DeepTraceEdge aggregates every traced transaction between an ordered address pair
type DeepTraceEdge struct {
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      float64   `json:"amount"`
	Count       int       `json:"count"`
	FirstTx     time.Time `json:"first_tx"`
	LastTx      time.Time `json:"last_tx"`
}

// DeepTraceStatistics summarises a trace
type DeepTraceStatistics struct {
	TotalNodes           int     `json:"total_nodes"`
	TotalEdges           int     `json:"total_edges"`
	TotalVolume          float64 `json:"total_volume"`
	MaxDepthReached      int     `json:"max_depth_reached"`
	TransactionsExamined int     `json:"transactions_examined"`
	TransactionsSkipped  int     `json:"transactions_skipped"`
}

// DeepTraceResult holds nodes in discovery order and edges in creation order
type DeepTraceResult struct {
	Nodes      []DeepTraceNode     `json:"nodes"`
	Edges      []DeepTraceEdge     `json:"edges"`
	Statistics DeepTraceStatistics `json:"statistics"`
}
