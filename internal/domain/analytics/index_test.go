package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-flow-forensics/internal/domain/entity"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func transfer(from, to string, amount float64, at time.Time) entity.Transaction {
	return entity.Transaction{
		Timestamp:   at,
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Currency:    "ETH",
		Kind:        entity.TransactionKindNative,
	}
}

func minutes(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

func TestBuildIndexEmpty(t *testing.T) {
	idx := BuildIndex(nil)

	assert.Empty(t, idx.Addresses())
	assert.Empty(t, idx.Outgoing("a"))
	assert.Empty(t, idx.Incoming("a"))
	assert.False(t, idx.Has("a"))
	assert.Zero(t, idx.TotalInflow("a"))
}

func TestBuildIndexCoversEveryTransaction(t *testing.T) {
	txs := []entity.Transaction{
		transfer("a", "b", 10, minutes(0)),
		transfer("b", "c", 5, minutes(1)),
		transfer("c", "a", 2, minutes(2)),
		transfer("a", "c", 1, minutes(3)),
		transfer("d", "b", 7, minutes(4)),
	}
	idx := BuildIndex(txs)

	require.Equal(t, []string{"a", "b", "c", "d"}, idx.Addresses())

	for _, address := range idx.Addresses() {
		touching := 0
		for _, tx := range txs {
			if tx.FromAddress == address || tx.ToAddress == address {
				touching++
			}
		}

		out, in := idx.Outgoing(address), idx.Incoming(address)
		assert.Equal(t, touching, len(out)+len(in), "address %s", address)
		for _, tx := range out {
			assert.Equal(t, address, tx.FromAddress)
		}
		for _, tx := range in {
			assert.Equal(t, address, tx.ToAddress)
		}
	}

	assert.Equal(t, []entity.Transaction{txs[0], txs[3]}, idx.Outgoing("a"))
	assert.InDelta(t, 11.0, idx.TotalOutflow("a"), 1e-9)
	assert.InDelta(t, 17.0, idx.TotalInflow("b"), 1e-9)
	assert.True(t, idx.Has("d"))
}
