package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSTaskClient submits analysis tasks to remote workers
type NATSTaskClient struct {
	conn   *nats.Conn
	config *config.NATSConfig
	logger *logger.Logger
}

// NewNATSTaskClient creates a task client
func NewNATSTaskClient(cfg *config.NATSConfig, logger *logger.Logger) *NATSTaskClient {
	return &NATSTaskClient{
		config: cfg,
		logger: logger.WithComponent("nats-task-client"),
	}
}

// Connect opens the NATS connection
func (c *NATSTaskClient) Connect() error {
	conn, err := dial(c.config, "flow-forensics-client", c.logger)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Close closes the connection
func (c *NATSTaskClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Submit sends a task and waits for its response until ctx is done. A
// request without an id is given a random one.
func (c *NATSTaskClient) Submit(ctx context.Context, req *entity.TaskRequest) (*entity.TaskResponse, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("task client is not connected")
	}

	data, err := encodeTaskRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Submitting task",
		zap.String("task_type", string(req.TaskType)),
		zap.String("request_id", req.RequestID))

	msg, err := c.conn.RequestWithContext(ctx, c.config.TaskSubject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to submit task %s: %w", req.RequestID, err)
	}

	var resp entity.TaskResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode task response: %w", err)
	}
	return &resp, nil
}

func encodeTaskRequest(req *entity.TaskRequest) ([]byte, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task request: %w", err)
	}
	return data, nil
}
