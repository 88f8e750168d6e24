package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"
)

type echoService struct {
	requests []*entity.TaskRequest
}

func (s *echoService) Execute(_ context.Context, req *entity.TaskRequest) *entity.TaskResponse {
	s.requests = append(s.requests, req)
	return &entity.TaskResponse{
		Status:    entity.TaskStatusSuccess,
		RequestID: req.RequestID,
		Data:      json.RawMessage(`{"task":"` + string(req.TaskType) + `"}`),
	}
}

func decodeResponse(t *testing.T, data []byte) entity.TaskResponse {
	t.Helper()
	var resp entity.TaskResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestTaskWorkerHandle(t *testing.T) {
	svc := &echoService{}
	w := NewNATSTaskWorker(&config.NATSConfig{}, svc, 0, 4, logger.NewNopLogger())

	resp := decodeResponse(t, w.handle(context.Background(), []byte(`{"task_type":"cluster","request_id":"r-1","payload":{}}`)))
	assert.Equal(t, entity.TaskStatusSuccess, resp.Status)
	assert.Equal(t, "r-1", resp.RequestID)
	assert.JSONEq(t, `{"task":"cluster"}`, string(resp.Data))
	require.Len(t, svc.requests, 1)
	assert.Equal(t, entity.TaskTypeCluster, svc.requests[0].TaskType)
}

func TestTaskWorkerRejectsMalformedRequest(t *testing.T) {
	svc := &echoService{}
	w := NewNATSTaskWorker(&config.NATSConfig{}, svc, 0, 0, logger.NewNopLogger())

	resp := decodeResponse(t, w.handle(context.Background(), []byte("not json")))
	assert.Equal(t, entity.TaskStatusError, resp.Status)
	assert.Contains(t, resp.Error, "malformed task request")
	assert.Empty(t, svc.requests)
	assert.Equal(t, 1, w.concurrency)
}

func TestEncodeTaskRequestAssignsID(t *testing.T) {
	req := &entity.TaskRequest{TaskType: entity.TaskTypeDetectPatterns, Payload: json.RawMessage(`{}`)}

	data, err := encodeTaskRequest(req)
	require.NoError(t, err)

	_, err = uuid.Parse(req.RequestID)
	require.NoError(t, err)

	var decoded entity.TaskRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req.RequestID, decoded.RequestID)

	req = &entity.TaskRequest{TaskType: entity.TaskTypeCluster, RequestID: "fixed"}
	_, err = encodeTaskRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "fixed", req.RequestID)
}
