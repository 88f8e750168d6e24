package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	fetchBatchSize = 10
	fetchMaxWait   = 5 * time.Second
)

// NATSConsumer receives raw chain events, over a JetStream pull consumer
// when the stream exists and a core queue subscription otherwise
type NATSConsumer struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	sub       *nats.Subscription
	config    *config.NATSConfig
	logger    *logger.Logger
	msgChan   chan *entity.ChainTransaction
	running   atomic.Bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(cfg *config.NATSConfig, logger *logger.Logger) *NATSConsumer {
	return &NATSConsumer{
		config:  cfg,
		logger:  logger.WithComponent("nats-consumer"),
		msgChan: make(chan *entity.ChainTransaction, cfg.MaxPendingMessages),
	}
}

// Connect connects to NATS server and sets up consumer
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	conn, err := dial(n.config, "flow-forensics-ingest", n.logger)
	if err != nil {
		return err
	}
	n.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		n.logger.Warn("JetStream not available, using core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.js = js
	return n.setupJetStreamSubscription()
}

func (n *NATSConsumer) subject() string {
	return fmt.Sprintf("%s.events", n.config.SubjectPrefix)
}

// setupJetStreamSubscription binds a durable pull consumer named after the consumer group
func (n *NATSConsumer) setupJetStreamSubscription() error {
	subject := n.subject()
	durable := n.config.ConsumerGroup

	sub, err := n.js.PullSubscribe(subject, durable, nats.BindStream(n.config.StreamName))
	if err != nil {
		n.logger.Warn("Failed to create pull consumer, falling back to core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.sub = sub
	n.running.Store(true)

	n.wg.Add(1)
	go n.processJetStreamMessages()

	n.logger.Info("Subscribed to NATS JetStream",
		zap.String("subject", subject),
		zap.String("stream", n.config.StreamName),
		zap.String("consumer", durable))

	return nil
}

// processJetStreamMessages fetches batches until the consumer stops
func (n *NATSConsumer) processJetStreamMessages() {
	defer n.wg.Done()
	n.logger.Info("Starting JetStream message processing")

	for n.running.Load() {
		msgs, err := n.sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if !n.running.Load() {
				break
			}
			n.logger.Error("Failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			n.handleMessage(msg)
		}
	}

	n.logger.Info("Stopped JetStream message processing")
}

// setupCoreNATSSubscription sets up core NATS subscription
func (n *NATSConsumer) setupCoreNATSSubscription() error {
	subject := n.subject()
	queueGroup := n.config.ConsumerGroup

	sub, err := n.conn.QueueSubscribe(subject, queueGroup, n.handleMessage)
	if err != nil {
		n.logger.Error("Failed to subscribe to subject", zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.sub = sub
	n.running.Store(true)

	n.logger.Info("Subscribed to core NATS",
		zap.String("subject", subject),
		zap.String("queue_group", queueGroup))

	return nil
}

// handleMessage decodes one event and hands it to the processing channel
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	var tx entity.ChainTransaction
	if err := json.Unmarshal(msg.Data, &tx); err != nil {
		n.logger.Error("Failed to unmarshal chain transaction", zap.Error(err))
		// a malformed event will never decode, so do not redeliver it
		if msg.Reply != "" {
			_ = msg.Term()
		}
		return
	}

	select {
	case n.msgChan <- &tx:
		if msg.Reply != "" {
			_ = msg.Ack()
		}
	default:
		n.logger.Warn("Message channel is full, dropping message", zap.String("hash", tx.Hash))
		if msg.Reply != "" {
			_ = msg.Nak()
		}
	}
}

// Disconnect stops consumption and closes the message channel
func (n *NATSConsumer) Disconnect() error {
	n.running.Store(false)

	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	n.wg.Wait()
	n.sub = nil

	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.closeOnce.Do(func() { close(n.msgChan) })
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	return n.running.Load() && n.conn != nil && n.conn.IsConnected()
}

// GetMessageChannel returns the message channel
func (n *NATSConsumer) GetMessageChannel() <-chan *entity.ChainTransaction {
	return n.msgChan
}
