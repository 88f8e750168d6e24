// Package analytics implements the in-memory graph analytics over a ledger of
// transfers: deep trace, path enumeration, taint propagation, pattern
// detection and behavioural clustering.
//
// Every function is a pure computation over the transactions it is given.
// Results are built fresh per call and never shared, so nothing here locks.
// Map iteration is never used to order output; the Index records addresses
// in first-seen order and everything downstream iterates that order.
package analytics

import (
	"crypto-flow-forensics/internal/domain/entity"
)

// Index holds forward and reverse adjacency over a transaction set.
// It is read-only once built.
type Index struct {
	forward      map[string][]entity.Transaction
	reverse      map[string][]entity.Transaction
	forwardPos   map[string][]int
	reversePos   map[string][]int
	addresses    []string
	transactions []entity.Transaction
}

// BuildIndex builds the adjacency index in a single pass. Each transaction is
// appended to the forward list of its sender and the reverse list of its
// receiver, preserving input order.
func BuildIndex(transactions []entity.Transaction) *Index {
	idx := &Index{
		forward:      make(map[string][]entity.Transaction),
		reverse:      make(map[string][]entity.Transaction),
		forwardPos:   make(map[string][]int),
		reversePos:   make(map[string][]int),
		transactions: transactions,
	}

	seen := make(map[string]struct{})
	track := func(address string) {
		if _, ok := seen[address]; !ok {
			seen[address] = struct{}{}
			idx.addresses = append(idx.addresses, address)
		}
	}

	for i, tx := range transactions {
		track(tx.FromAddress)
		track(tx.ToAddress)
		idx.forward[tx.FromAddress] = append(idx.forward[tx.FromAddress], tx)
		idx.reverse[tx.ToAddress] = append(idx.reverse[tx.ToAddress], tx)
		idx.forwardPos[tx.FromAddress] = append(idx.forwardPos[tx.FromAddress], i)
		idx.reversePos[tx.ToAddress] = append(idx.reversePos[tx.ToAddress], i)
	}

	return idx
}

// Outgoing returns the transactions sent by address in input order
func (idx *Index) Outgoing(address string) []entity.Transaction {
	return idx.forward[address]
}

// Incoming returns the transactions received by address in input order
func (idx *Index) Incoming(address string) []entity.Transaction {
	return idx.reverse[address]
}

// Addresses returns every address in order of first appearance
func (idx *Index) Addresses() []string {
	return idx.addresses
}

// Transactions returns the indexed transaction set
func (idx *Index) Transactions() []entity.Transaction {
	return idx.transactions
}

// Has reports whether address appears in any transaction
func (idx *Index) Has(address string) bool {
	_, out := idx.forward[address]
	_, in := idx.reverse[address]
	return out || in
}

// TotalOutflow sums every amount sent by address
func (idx *Index) TotalOutflow(address string) float64 {
	return sumAmounts(idx.forward[address])
}

// TotalInflow sums every amount received by address
func (idx *Index) TotalInflow(address string) float64 {
	return sumAmounts(idx.reverse[address])
}

func sumAmounts(txs []entity.Transaction) float64 {
	total := 0.0
	for _, tx := range txs {
		total += tx.Amount
	}
	return total
}
