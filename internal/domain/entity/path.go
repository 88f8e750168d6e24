package entity

import (
	"time"
)

// PathFinderConfig configures simple-path enumeration between two addresses
type PathFinderConfig struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	MaxDepth int    `json:"max_depth"`
	MaxPaths int    `json:"max_paths"`
	// Chronological only extends a path with hops not earlier than the previous hop
	Chronological bool `json:"chronological"`
}

// TransactionPath is a simple walk of transactions from source to target
type TransactionPath struct {
	Addresses      []string      `json:"addresses"`
	Transactions   []Transaction `json:"transactions"`
	TotalAmount    float64       `json:"total_amount"`
	Hops           int           `json:"hops"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	AvgDelay       time.Duration `json:"avg_delay"`
	SuspicionScore float64       `json:"suspicion_score"`
}

// PathFinderStatistics summarises an enumeration
type PathFinderStatistics struct {
	TotalPaths         int     `json:"total_paths"`
	ShortestHops       int     `json:"shortest_hops"`
	LongestHops        int     `json:"longest_hops"`
	AverageHops        float64 `json:"average_hops"`
	AverageSuspicion   float64 `json:"average_suspicion"`
	MaxSuspicion       float64 `json:"max_suspicion"`
	TotalAmountOnPaths float64 `json:"total_amount_on_paths"`
	Truncated          bool    `json:"truncated"`
}

// PathFinderResult holds paths in discovery order
type PathFinderResult struct {
	Paths        []TransactionPath    `json:"paths"`
	ShortestPath *TransactionPath     `json:"shortest_path"`
	Statistics   PathFinderStatistics `json:"statistics"`
}
