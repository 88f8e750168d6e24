package analytics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-flow-forensics/internal/domain/entity"
)

func TestFindPathsSingleRoute(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("A", "B", 1000, minutes(0)),
		transfer("B", "C", 1000, minutes(10)),
	})

	result, err := FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "C", MaxDepth: 5, MaxPaths: DefaultMaxPaths})
	require.NoError(t, err)

	require.Len(t, result.Paths, 1)
	path := result.Paths[0]
	assert.Equal(t, []string{"A", "B", "C"}, path.Addresses)
	assert.InDelta(t, 2000.0, path.TotalAmount, 1e-9)
	assert.Equal(t, 2, path.Hops)
	assert.Equal(t, minutes(0), path.StartDate)
	assert.Equal(t, minutes(10), path.EndDate)
	assert.Equal(t, minutes(10).Sub(minutes(0)), path.AvgDelay)
	// round 30 + rapid 0 + length 6 + consistency 20
	assert.InDelta(t, 56.0, path.SuspicionScore, 1e-9)

	require.NotNil(t, result.ShortestPath)
	assert.Equal(t, path, *result.ShortestPath)
	assert.False(t, result.Statistics.Truncated)
}

func TestFindPathsBudgetMetExactlyIsNotTruncated(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("A", "B", 10, minutes(0)),
		transfer("B", "Z", 10, minutes(1)),
		transfer("A", "Z", 10, minutes(2)),
	})

	result, err := FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "Z", MaxDepth: 10, MaxPaths: 2})
	require.NoError(t, err)
	require.Len(t, result.Paths, 2)
	assert.False(t, result.Statistics.Truncated)

	result, err = FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "Z", MaxDepth: 10, MaxPaths: 1})
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.True(t, result.Statistics.Truncated)

	single := BuildIndex(chain("A", "B", "Z"))
	result, err = FindPaths(single, entity.PathFinderConfig{Source: "A", Target: "Z", MaxDepth: 10, MaxPaths: 1})
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.False(t, result.Statistics.Truncated)
}

func TestFindPathsBudgetKeepsFirstDiscovered(t *testing.T) {
	txs := []entity.Transaction{
		transfer("A", "B", 10, minutes(0)),
		transfer("B", "C", 10, minutes(1)),
		transfer("C", "Z", 10, minutes(2)),
		transfer("A", "Z", 10, minutes(3)),
	}
	idx := BuildIndex(txs)

	result, err := FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "Z", MaxDepth: 10, MaxPaths: 1})
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.Equal(t, []string{"A", "B", "C", "Z"}, result.Paths[0].Addresses)
	assert.True(t, result.Statistics.Truncated)

	result, err = FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "Z", MaxDepth: 10, MaxPaths: 100})
	require.NoError(t, err)
	require.Len(t, result.Paths, 2)
	require.NotNil(t, result.ShortestPath)
	assert.Equal(t, []string{"A", "Z"}, result.ShortestPath.Addresses)
	assert.Equal(t, 1, result.Statistics.ShortestHops)
	assert.Equal(t, 3, result.Statistics.LongestHops)
	assert.InDelta(t, 2.0, result.Statistics.AverageHops, 1e-9)
}

func TestFindPathsReturnsSimplePaths(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("s", "a", 1, minutes(0)),
		transfer("s", "b", 1, minutes(1)),
		transfer("a", "b", 1, minutes(2)),
		transfer("b", "a", 1, minutes(3)),
		transfer("a", "s", 1, minutes(4)),
		transfer("a", "t", 1, minutes(5)),
		transfer("b", "t", 1, minutes(6)),
		transfer("t", "a", 1, minutes(7)),
	})

	result, err := FindPaths(idx, entity.PathFinderConfig{Source: "s", Target: "t", MaxDepth: 10, MaxPaths: 100})
	require.NoError(t, err)
	require.Len(t, result.Paths, 4)

	for _, p := range result.Paths {
		assert.Equal(t, "s", p.Addresses[0])
		assert.Equal(t, "t", p.Addresses[len(p.Addresses)-1])
		assert.Len(t, p.Addresses, p.Hops+1)

		seen := map[string]bool{}
		for _, a := range p.Addresses {
			assert.False(t, seen[a], "address %s repeats in %v", a, p.Addresses)
			seen[a] = true
		}
		for i, tx := range p.Transactions {
			assert.Equal(t, p.Addresses[i], tx.FromAddress)
			assert.Equal(t, p.Addresses[i+1], tx.ToAddress)
		}
	}
}

func TestFindPathsDepthAndOrdering(t *testing.T) {
	idx := BuildIndex([]entity.Transaction{
		transfer("A", "B", 5, minutes(30)),
		transfer("B", "C", 5, minutes(10)),
	})

	result, err := FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "C", MaxDepth: 1, MaxPaths: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Paths)
	assert.Nil(t, result.ShortestPath)

	result, err = FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "C", MaxDepth: 2, MaxPaths: 10})
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.Equal(t, minutes(10), result.Paths[0].StartDate)
	assert.Equal(t, minutes(30), result.Paths[0].EndDate)

	result, err = FindPaths(idx, entity.PathFinderConfig{Source: "A", Target: "C", MaxDepth: 2, MaxPaths: 10, Chronological: true})
	require.NoError(t, err)
	assert.Empty(t, result.Paths)
}

func TestFindPathsNoRoute(t *testing.T) {
	for _, txs := range [][]entity.Transaction{nil, {transfer("A", "B", 1, minutes(0))}} {
		result, err := FindPaths(BuildIndex(txs), entity.PathFinderConfig{Source: "B", Target: "A", MaxDepth: 10, MaxPaths: 100})
		require.NoError(t, err)
		assert.NotNil(t, result.Paths)
		assert.Empty(t, result.Paths)
		assert.Nil(t, result.ShortestPath)
		assert.Zero(t, result.Statistics.TotalPaths)
	}
}

func TestFindPathsRejectsInvalidConfig(t *testing.T) {
	tests := map[string]struct {
		cfg   entity.PathFinderConfig
		field string
	}{
		"missing source": {entity.PathFinderConfig{Target: "b", MaxDepth: 1, MaxPaths: 1}, "source"},
		"missing target": {entity.PathFinderConfig{Source: "a", MaxDepth: 1, MaxPaths: 1}, "target"},
		"zero depth":     {entity.PathFinderConfig{Source: "a", Target: "b", MaxPaths: 1}, "max_depth"},
		"zero budget":    {entity.PathFinderConfig{Source: "a", Target: "b", MaxDepth: 1}, "max_paths"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FindPaths(BuildIndex(nil), tt.cfg)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestFindPathsIsRepeatable(t *testing.T) {
	idx := BuildIndex(append(chain("a", "b", "c", "d"), chain("a", "c", "b", "d")...))
	cfg := entity.PathFinderConfig{Source: "a", Target: "d", MaxDepth: 5, MaxPaths: 50}

	first, err := FindPaths(idx, cfg)
	require.NoError(t, err)
	second, err := FindPaths(idx, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSuspicionScore(t *testing.T) {
	assert.Zero(t, SuspicionScore(nil))

	// round 30 + no gaps + length 3 + consistency 20
	assert.InDelta(t, 53.0, SuspicionScore([]entity.Transaction{transfer("a", "b", 5000, minutes(0))}), 1e-9)

	var burst []entity.Transaction
	for i := 0; i < 10; i++ {
		burst = append(burst, transfer("x", "y", 1000, minutes(i)))
	}
	assert.Equal(t, 100.0, SuspicionScore(burst))

	// 10 and 30: cv = 0.5, nothing round, gap of an hour
	scattered := []entity.Transaction{transfer("a", "b", 10, minutes(0)), transfer("b", "c", 30, minutes(60))}
	assert.InDelta(t, 6.0, SuspicionScore(scattered), 1e-9)
}
