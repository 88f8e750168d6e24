package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-flow-forensics/internal/domain/entity"
)

func findPattern(patterns []entity.SuspiciousPattern, patternType entity.PatternType) *entity.SuspiciousPattern {
	for i := range patterns {
		if patterns[i].Type == patternType {
			return &patterns[i]
		}
	}
	return nil
}

func TestDetectCircularFlows(t *testing.T) {
	t.Run("back and forth is not a cycle", func(t *testing.T) {
		idx := BuildIndex([]entity.Transaction{
			transfer("A", "B", 100, minutes(0)),
			transfer("B", "A", 100, minutes(1)),
		})
		assert.Empty(t, DetectCircularFlows(idx))
	})

	t.Run("self transfer is not a cycle", func(t *testing.T) {
		idx := BuildIndex([]entity.Transaction{transfer("A", "A", 1, minutes(0))})
		assert.Empty(t, DetectCircularFlows(idx))
	})

	t.Run("triangle", func(t *testing.T) {
		idx := BuildIndex(chain("A", "B", "C", "A"))
		assert.Equal(t, [][]string{{"A", "B", "C"}}, DetectCircularFlows(idx))
	})

	t.Run("capped at ten", func(t *testing.T) {
		var txs []entity.Transaction
		for i := 0; i < 15; i++ {
			a, b, c := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i)
			txs = append(txs, chain(a, b, c, a)...)
		}
		assert.Len(t, DetectCircularFlows(BuildIndex(txs)), 10)
	})
}

func TestDetectPatternsEmpty(t *testing.T) {
	patterns := DetectPatterns(BuildIndex(nil))
	assert.NotNil(t, patterns)
	assert.Empty(t, patterns)
}

func TestDetectRoundAmounts(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("a", "b", 1000, minutes(0)),
		transfer("b", "c", 5000, minutes(60)),
		transfer("c", "d", 3000, minutes(120)),
		transfer("d", "e", 55.5, minutes(180)),
	})

	p := findPattern(DetectPatterns(idx), entity.PatternTypeRoundAmounts)
	require.NotNil(t, p)
	assert.Equal(t, entity.SeverityHigh, p.Severity)
	assert.InDelta(t, 75.0, p.Score, 1e-9)
	assert.Len(t, p.Transactions, 3)
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.AffectedAddresses)

	idx = BuildIndex([]entity.Transaction{
		transfer("a", "b", 1000, minutes(0)),
		transfer("b", "c", 12, minutes(60)),
		transfer("c", "d", 13, minutes(120)),
	})
	p = findPattern(DetectPatterns(idx), entity.PatternTypeRoundAmounts)
	require.NotNil(t, p)
	assert.Equal(t, entity.SeverityMedium, p.Severity)
}

func TestDetectRapidTransfers(t *testing.T) {
	var txs []entity.Transaction
	for i := 0; i < 7; i++ {
		txs = append(txs, transfer("burst", fmt.Sprintf("r%d", i), 1.5, baseTime.Add(time.Duration(i)*10*time.Second)))
	}
	for i := 0; i < 6; i++ {
		txs = append(txs, transfer("calm", "r0", 1.5, baseTime.Add(time.Duration(i)*10*time.Second)))
	}

	p := findPattern(DetectPatterns(BuildIndex(txs)), entity.PatternTypeRapidTransfers)
	require.NotNil(t, p)
	assert.Equal(t, []string{"burst"}, p.AffectedAddresses)
	assert.Equal(t, entity.SeverityHigh, p.Severity)
	assert.InDelta(t, 10.0, p.Score, 1e-9)
}

func TestDetectLayering(t *testing.T) {
	txs := []entity.Transaction{transfer("src", "mule", 600, minutes(0))}
	for i := 1; i <= 6; i++ {
		txs = append(txs, transfer("mule", fmt.Sprintf("out%d", i), 99, minutes(i*10)))
	}

	p := findPattern(DetectPatterns(BuildIndex(txs)), entity.PatternTypeLayering)
	require.NotNil(t, p)
	assert.Equal(t, []string{"mule"}, p.AffectedAddresses)
	assert.Equal(t, 85.0, p.Score)
	assert.Equal(t, entity.SeverityHigh, p.Severity)

	// each outgoing transfer is measured from the latest earlier receipt: 10..60 minutes
	delays, ok := p.Metadata["avg_delay_hours"].(map[string]float64)
	require.True(t, ok)
	assert.InDelta(t, 35.0/60, delays["mule"], 1e-9)
}

func TestDetectLayeringSkipsOneSidedAddresses(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("src", "sink", 600, minutes(0)),
	})
	assert.Nil(t, findPattern(DetectPatterns(idx), entity.PatternTypeLayering))

	// balanced but slow
	txs := []entity.Transaction{transfer("src", "holder", 600, minutes(0))}
	for i := 1; i <= 6; i++ {
		txs = append(txs, transfer("holder", fmt.Sprintf("out%d", i), 99, minutes(i*600)))
	}
	assert.Nil(t, findPattern(DetectPatterns(BuildIndex(txs)), entity.PatternTypeLayering))
}

func TestDetectMixerUsage(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("alice", "0xTornadoPool", 2, minutes(0)),
		transfer("bob", "carol", 3, minutes(1)),
	})

	patterns := DetectPatterns(idx)
	p := findPattern(patterns, entity.PatternTypeMixerUsage)
	require.NotNil(t, p)
	assert.Equal(t, entity.SeverityCritical, p.Severity)
	assert.Equal(t, 95.0, p.Score)
	assert.Equal(t, []string{"alice", "0xTornadoPool"}, p.AffectedAddresses)
	assert.Equal(t, []string{"0xTornadoPool"}, p.Metadata["mixer_addresses"])
	assert.True(t, p.Affects("alice"))
	assert.False(t, p.Affects("bob"))
}

func TestDetectHighVelocity(t *testing.T) {
	var txs []entity.Transaction
	for i := 0; i < 25; i++ {
		txs = append(txs, transfer("hot", "cold", 3.3, minutes(i*2)))
	}

	p := findPattern(DetectPatterns(BuildIndex(txs)), entity.PatternTypeHighVelocity)
	require.NotNil(t, p)
	assert.Equal(t, []string{"hot"}, p.AffectedAddresses)
	assert.Equal(t, entity.SeverityMedium, p.Severity)
	assert.Len(t, p.Transactions, 25)
}

func TestDetectPatternsSortedAndSampled(t *testing.T) {
	var txs []entity.Transaction
	for i := 0; i < 150; i++ {
		txs = append(txs, transfer(fmt.Sprintf("u%d", i), fmt.Sprintf("v%d", i), 1000, minutes(i*30)))
	}
	txs = append(txs, transfer("u0", "mixer.eth", 1000, minutes(0)))

	patterns := DetectPatterns(BuildIndex(txs))
	require.Len(t, patterns, 2)
	assert.Equal(t, entity.PatternTypeRoundAmounts, patterns[0].Type)
	assert.Equal(t, 100.0, patterns[0].Score)
	assert.Equal(t, entity.PatternTypeMixerUsage, patterns[1].Type)

	assert.Len(t, patterns[0].Transactions, maxPatternSample)
	assert.Len(t, patterns[0].AffectedAddresses, 301)
}
