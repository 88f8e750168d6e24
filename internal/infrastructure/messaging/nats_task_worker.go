package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/service"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NATSTaskWorker serves analysis tasks over NATS request/reply. Requests are
// load-balanced across workers through a queue group and run concurrently up
// to the configured limit.
type NATSTaskWorker struct {
	conn        *nats.Conn
	sub         *nats.Subscription
	config      *config.NATSConfig
	service     service.ForensicsService
	timeout     time.Duration
	concurrency int
	logger      *logger.Logger

	mu      sync.Mutex
	group   *errgroup.Group
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewNATSTaskWorker creates a task worker
func NewNATSTaskWorker(cfg *config.NATSConfig, svc service.ForensicsService, timeout time.Duration, concurrency int, logger *logger.Logger) *NATSTaskWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &NATSTaskWorker{
		config:      cfg,
		service:     svc,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger.WithComponent("nats-task-worker"),
	}
}

// Start subscribes to the task subject
func (w *NATSTaskWorker) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.Info("NATS is disabled, task worker not started")
		return nil
	}

	conn, err := dial(w.config, "flow-forensics-worker", w.logger)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.baseCtx, w.cancel = context.WithCancel(context.Background())
	w.group = new(errgroup.Group)
	w.group.SetLimit(w.concurrency)
	w.mu.Unlock()

	sub, err := conn.QueueSubscribe(w.config.TaskSubject, w.config.TaskQueueGroup, func(msg *nats.Msg) {
		// Go blocks once the limit is reached, which holds back the subscription
		w.group.Go(func() error {
			w.reply(msg)
			return nil
		})
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to task subject: %w", err)
	}
	w.sub = sub

	w.logger.Info("Task worker listening",
		zap.String("subject", w.config.TaskSubject),
		zap.String("queue_group", w.config.TaskQueueGroup),
		zap.Int("concurrency", w.concurrency))
	return nil
}

// Stop drains the subscription and waits for in-flight tasks
func (w *NATSTaskWorker) Stop(ctx context.Context) error {
	if w.sub == nil {
		return nil
	}
	if err := w.sub.Unsubscribe(); err != nil {
		w.logger.Warn("Failed to unsubscribe task worker", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		_ = w.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.cancel()
		<-done
	}
	w.cancel()
	w.conn.Close()
	w.logger.Info("Task worker stopped")
	return nil
}

func (w *NATSTaskWorker) reply(msg *nats.Msg) {
	ctx := w.baseCtx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out := w.handle(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(out); err != nil {
		w.logger.Error("Failed to send task response", zap.Error(err))
	}
}

// handle decodes a request, executes it and encodes the response
func (w *NATSTaskWorker) handle(ctx context.Context, data []byte) []byte {
	var req entity.TaskRequest
	var resp *entity.TaskResponse

	if err := json.Unmarshal(data, &req); err != nil {
		w.logger.Warn("Rejecting malformed task request", zap.Error(err))
		resp = &entity.TaskResponse{
			Status: entity.TaskStatusError,
			Error:  fmt.Sprintf("malformed task request: %v", err),
		}
	} else {
		resp = w.service.Execute(ctx, &req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		w.logger.Error("Failed to encode task response", zap.String("request_id", req.RequestID), zap.Error(err))
		out, _ = json.Marshal(&entity.TaskResponse{
			Status:    entity.TaskStatusError,
			RequestID: req.RequestID,
			Error:     "failed to encode task response",
		})
	}
	return out
}
