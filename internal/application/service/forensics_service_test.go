package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
	"crypto-flow-forensics/internal/infrastructure/cache"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/metrics"
)

var chainLedger = []entity.Transaction{
	transfer("t1", "a", "b", 100, 0),
	transfer("t2", "b", "c", 100, 1),
}

func analysisConfig() *config.AnalysisConfig {
	return &config.AnalysisConfig{
		DefaultMaxDepth:     10,
		DefaultMaxPaths:     100,
		DefaultTaintMaxHops: 10,
		NeighborhoodHops:    3,
		NeighborhoodLimit:   5000,
		CacheSize:           8,
	}
}

func newForensics(t *testing.T, repo repository.TransferRepository) *ForensicsApplicationService {
	t.Helper()
	transfers, err := cache.NewTransferCache(8, metrics.NewCache())
	require.NoError(t, err)
	svc := NewForensicsApplicationService(repo, transfers, analysisConfig(), metrics.NewTasks(), logger.NewNopLogger())
	return svc.(*ForensicsApplicationService)
}

func request(t *testing.T, taskType entity.TaskType, payload any) *entity.TaskRequest {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &entity.TaskRequest{TaskType: taskType, RequestID: "req-" + string(taskType), Payload: raw}
}

func success(t *testing.T, resp *entity.TaskResponse, out any) {
	t.Helper()
	require.Equal(t, entity.TaskStatusSuccess, resp.Status, resp.Error)
	require.Empty(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func failure(t *testing.T, resp *entity.TaskResponse, contains string) {
	t.Helper()
	require.Equal(t, entity.TaskStatusError, resp.Status)
	assert.Empty(t, resp.Data)
	assert.Contains(t, resp.Error, contains)
}

func TestExecuteDeepTraceAppliesDefaults(t *testing.T) {
	svc := newForensics(t, nil)

	resp := svc.Execute(context.Background(), request(t, entity.TaskTypeDeepTrace, entity.DeepTracePayload{
		Dataset: entity.Dataset{Transactions: chainLedger, Address: "a"},
	}))
	assert.Equal(t, "req-deep_trace", resp.RequestID)

	var result entity.DeepTraceResult
	success(t, resp, &result)
	require.Len(t, result.Nodes, 3)
	assert.Equal(t, "a", result.Nodes[0].Address)
	assert.Equal(t, 2, result.Nodes[2].Depth)
	assert.Len(t, result.Edges, 2)
}

func TestExecuteFindPathsAndTaint(t *testing.T) {
	svc := newForensics(t, nil)
	ds := entity.Dataset{Transactions: chainLedger}

	var paths entity.PathFinderResult
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeFindPaths, entity.FindPathsPayload{
		Dataset: ds,
		Config:  entity.PathFinderConfig{Source: "a", Target: "c"},
	})), &paths)
	require.Len(t, paths.Paths, 1)
	assert.Equal(t, []string{"a", "b", "c"}, paths.Paths[0].Addresses)
	require.NotNil(t, paths.ShortestPath)

	var taint entity.TaintFlow
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeTaint, entity.TaintPayload{
		Dataset: ds,
		Source:  "a",
		Target:  "c",
	})), &taint)
	assert.InDelta(t, 100, taint.TotalTainted, 1e-9)
	assert.InDelta(t, 100, taint.TaintPercentage, 1e-9)
}

func TestExecuteDatasetTasks(t *testing.T) {
	svc := newForensics(t, nil)
	ds := entity.DatasetPayload{Dataset: entity.Dataset{Transactions: chainLedger}}

	var patterns []entity.SuspiciousPattern
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeDetectPatterns, ds)), &patterns)
	assert.NotNil(t, patterns)

	var clusters []entity.AddressCluster
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeCluster, ds)), &clusters)

	var risk entity.AddressRiskAssessment
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeAssessRisk, entity.AssessRiskPayload{
		Dataset: ds.Dataset,
		Address: "b",
	})), &risk)
	assert.Equal(t, "b", risk.Address)
	assert.InDelta(t, 100, risk.TotalSent, 1e-9)
	assert.InDelta(t, 100, risk.TotalReceived, 1e-9)
}

func TestExecuteFullReport(t *testing.T) {
	svc := newForensics(t, nil)

	var report entity.FullReport
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeFullReport, entity.FullReportPayload{
		Dataset: entity.Dataset{Transactions: chainLedger},
		Address: "a",
		Target:  "c",
	})), &report)

	assert.Equal(t, "a", report.Address)
	require.NotNil(t, report.Trace)
	assert.Len(t, report.Trace.Nodes, 3)
	assert.Equal(t, "a", report.Risk.Address)
	require.NotNil(t, report.Paths)
	assert.Len(t, report.Paths.Paths, 1)
	require.NotNil(t, report.Taint)
	assert.InDelta(t, 100, report.Taint.TotalTainted, 1e-9)
}

func TestExecuteFullReportWithoutTarget(t *testing.T) {
	svc := newForensics(t, nil)

	var report entity.FullReport
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeFullReport, entity.FullReportPayload{
		Dataset: entity.Dataset{Transactions: chainLedger, Address: "b"},
	})), &report)

	assert.Equal(t, "b", report.Address)
	assert.Nil(t, report.Paths)
	assert.Nil(t, report.Taint)
}

func TestExecuteErrors(t *testing.T) {
	svc := newForensics(t, nil)
	inline := entity.Dataset{Transactions: chainLedger}

	tests := []struct {
		name     string
		req      *entity.TaskRequest
		contains string
	}{
		{
			name:     "unknown task type",
			req:      &entity.TaskRequest{TaskType: "explode", Payload: json.RawMessage(`{}`)},
			contains: `unknown task type "explode"`,
		},
		{
			name:     "missing payload",
			req:      &entity.TaskRequest{TaskType: entity.TaskTypeCluster},
			contains: "has no payload",
		},
		{
			name:     "malformed payload",
			req:      &entity.TaskRequest{TaskType: entity.TaskTypeCluster, Payload: json.RawMessage(`[1,2]`)},
			contains: "malformed cluster payload",
		},
		{
			name: "invalid depth",
			req: request(t, entity.TaskTypeFindPaths, entity.FindPathsPayload{
				Dataset: inline,
				Config:  entity.PathFinderConfig{Source: "a", Target: "c", MaxDepth: -1},
			}),
			contains: "invalid max_depth",
		},
		{
			name: "invalid direction",
			req: request(t, entity.TaskTypeDeepTrace, entity.DeepTracePayload{
				Dataset: inline,
				Config:  entity.DeepTraceConfig{StartAddress: "a", Direction: "sideways"},
			}),
			contains: "invalid direction",
		},
		{
			name:     "empty dataset",
			req:      request(t, entity.TaskTypeDetectPatterns, entity.DatasetPayload{}),
			contains: ErrEmptyDataset.Error(),
		},
		{
			name: "no ledger",
			req: request(t, entity.TaskTypeDetectPatterns, entity.DatasetPayload{
				Dataset: entity.Dataset{Address: "a"},
			}),
			contains: ErrNoLedger.Error(),
		},
		{
			name:     "risk without address",
			req:      request(t, entity.TaskTypeAssessRisk, entity.AssessRiskPayload{Dataset: inline}),
			contains: "requires an address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure(t, svc.Execute(context.Background(), tt.req), tt.contains)
		})
	}
}

func TestExecuteLoadsFromLedgerThroughCache(t *testing.T) {
	repo := &memoryRepository{ledger: chainLedger}
	svc := newForensics(t, repo)
	req := request(t, entity.TaskTypeDetectPatterns, entity.DatasetPayload{
		Dataset: entity.Dataset{Address: "a", Chain: "ethereum"},
	})

	var patterns []entity.SuspiciousPattern
	success(t, svc.Execute(context.Background(), req), &patterns)
	success(t, svc.Execute(context.Background(), req), &patterns)

	require.Len(t, repo.queries, 1, "second load is served from the cache")
	assert.Equal(t, repository.TransferQuery{
		Address: "a",
		Chain:   "ethereum",
		MaxHops: 3,
		Limit:   5000,
	}, repo.queries[0])

	wide := request(t, entity.TaskTypeDetectPatterns, entity.DatasetPayload{
		Dataset: entity.Dataset{Address: "a", Hops: 5},
	})
	success(t, svc.Execute(context.Background(), wide), &patterns)
	success(t, svc.Execute(context.Background(), wide), &patterns)
	require.Len(t, repo.queries, 3, "non-default hop counts bypass the cache")
	assert.Equal(t, 5, repo.queries[2].MaxHops)
}

func TestExecuteLoadsTimeWindow(t *testing.T) {
	repo := &memoryRepository{ledger: chainLedger}
	svc := newForensics(t, repo)

	var trace entity.DeepTraceResult
	success(t, svc.Execute(context.Background(), request(t, entity.TaskTypeDeepTrace, entity.DeepTracePayload{
		Dataset: entity.Dataset{TimeWindow: &entity.TimeWindow{Start: baseTime, End: baseTime}},
		Config:  entity.DeepTraceConfig{StartAddress: "a"},
	})), &trace)

	assert.Len(t, trace.Nodes, 2, "only the first transfer is inside the window")
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	svc := newForensics(t, &memoryRepository{panicLoad: true})

	resp := svc.Execute(context.Background(), request(t, entity.TaskTypeCluster, entity.DatasetPayload{
		Dataset: entity.Dataset{Address: "a"},
	}))
	failure(t, resp, "task panicked: ledger exploded")
	assert.Equal(t, "req-cluster", resp.RequestID)
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "taint", metricLabel(entity.TaskTypeTaint))
	assert.Equal(t, "", metricLabel("anything-else"))
}
