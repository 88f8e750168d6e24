package messaging

import (
	"fmt"

	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// dial opens a NATS connection with the reconnect policy from cfg
func dial(cfg *config.NATSConfig, name string, log *logger.Logger) (*nats.Conn, error) {
	log.Info("Connecting to NATS server", zap.String("url", cfg.URL))

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectDelay),
		nats.MaxReconnects(cfg.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		log.Error("Failed to connect to NATS", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
