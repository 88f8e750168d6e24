// Package cache holds caller-owned memoisation of ledger loads.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/infrastructure/metrics"
)

// Key identifies one cached load
type Key struct {
	Address     string
	Chain       string
	TokenFilter string
}

// TransferCache is a fixed-size LRU of transfer sets. It is safe for
// concurrent use. Entries are shared, so callers must not modify the slices
// they get back.
type TransferCache struct {
	entries *lru.Cache[Key, []entity.Transaction]
	metrics *metrics.Cache
}

// NewTransferCache creates a cache holding at most size entries
func NewTransferCache(size int, m *metrics.Cache) (*TransferCache, error) {
	entries, err := lru.New[Key, []entity.Transaction](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer cache: %w", err)
	}
	return &TransferCache{entries: entries, metrics: m}, nil
}

// Get returns the cached transfers for key
func (c *TransferCache) Get(key Key) ([]entity.Transaction, bool) {
	transfers, ok := c.entries.Get(key)
	c.metrics.ObserveLookup(ok)
	return transfers, ok
}

// Put stores transfers under key
func (c *TransferCache) Put(key Key, transfers []entity.Transaction) {
	c.entries.Add(key, transfers)
}

// InvalidateAddresses drops every entry whose transfers touch one of the
// addresses, along with entries keyed by them
func (c *TransferCache) InvalidateAddresses(addresses []string) int {
	if len(addresses) == 0 {
		return 0
	}
	touched := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		touched[a] = true
	}

	removed := 0
	for _, key := range c.entries.Keys() {
		transfers, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if touched[key.Address] || touchesAny(transfers, touched) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries
func (c *TransferCache) Len() int {
	return c.entries.Len()
}

func touchesAny(transfers []entity.Transaction, addresses map[string]bool) bool {
	for _, t := range transfers {
		if addresses[t.FromAddress] || addresses[t.ToAddress] {
			return true
		}
	}
	return false
}
