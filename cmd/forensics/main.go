package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	app_service "crypto-flow-forensics/internal/application/service"
	"crypto-flow-forensics/internal/domain/entity"
	domain_service "crypto-flow-forensics/internal/domain/service"
	"crypto-flow-forensics/internal/infrastructure/blockchain"
	"crypto-flow-forensics/internal/infrastructure/cache"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/database"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/messaging"
	"crypto-flow-forensics/internal/infrastructure/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	flushInterval   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),
		fx.Supply(&cfg.Analysis),

		// Metrics collectors
		fx.Provide(
			metrics.NewTasks,
			metrics.NewIndexing,
			metrics.NewRepository,
			metrics.NewCache,
		),

		// Infrastructure providers
		fx.Provide(
			database.NewNeo4JClient,
			database.NewNeo4JTransferRepository,
			func(cfg *config.AnalysisConfig, m *metrics.Cache) (*cache.TransferCache, error) {
				return cache.NewTransferCache(cfg.CacheSize, m)
			},
			fx.Annotate(
				blockchain.NewEthereumTransferDecoder,
				fx.As(new(domain_service.TransferDecoder)),
			),
			messaging.NewNATSConsumer,
			newTaskWorker,
		),

		// Application providers
		fx.Provide(
			app_service.NewIndexingApplicationService,
			app_service.NewForensicsApplicationService,
		),

		// Lifecycle hooks
		fx.Invoke(startLedger),
		fx.Invoke(startIndexer),
		fx.Invoke(startTaskWorker),
		fx.Invoke(startHealthServer),

		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

func newTaskWorker(cfg *config.Config, svc domain_service.ForensicsService, log *logger.Logger) *messaging.NATSTaskWorker {
	return messaging.NewNATSTaskWorker(&cfg.NATS, svc, cfg.Analysis.TaskTimeout, cfg.App.WorkerPoolSize, log)
}

// startLedger connects to Neo4J before anything that reads or writes the ledger
func startLedger(lifecycle fx.Lifecycle, client *database.Neo4JClient, log *logger.Logger) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to Neo4J: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(ctx); err != nil {
				log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			return nil
		},
	})
}

// startIndexer feeds chain events from NATS into the ledger
func startIndexer(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	indexingService domain_service.IndexingService,
	log *logger.Logger,
	cfg *config.Config,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting indexer",
				zap.String("url", cfg.NATS.URL),
				zap.String("stream_name", cfg.NATS.StreamName),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled))

			if err := consumer.Connect(ctx); err != nil {
				cancel()
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			go func() {
				defer close(done)
				processMessages(runCtx, consumer, indexingService, log, cfg)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping indexer...")
			err := consumer.Disconnect()
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("Indexer did not drain before shutdown deadline")
			}
			return err
		},
	})
}

// startTaskWorker serves analysis tasks over NATS
func startTaskWorker(lifecycle fx.Lifecycle, worker *messaging.NATSTaskWorker) {
	lifecycle.Append(fx.Hook{
		OnStart: worker.Start,
		OnStop:  worker.Stop,
	})
}

// startHealthServer serves /health and the prometheus metrics
func startHealthServer(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	neo4jClient *database.Neo4JClient,
	consumer *messaging.NATSConsumer,
	logger *logger.Logger,
) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.Health.Timeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if !neo4jClient.IsConnected(ctx) || (cfg.NATS.Enabled && !consumer.IsConnected()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	servers := []*http.Server{{Addr: fmt.Sprintf(":%d", cfg.App.HTTPPort), Handler: mux}}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.App.HTTPPort {
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		} else {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			servers = append(servers, &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: metricsMux})
		}
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, server := range servers {
				logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
				go func(server *http.Server) {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP server error", zap.String("addr", server.Addr), zap.Error(err))
					}
				}(server)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP servers...")
			for _, server := range servers {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("Failed to shut down HTTP server", zap.String("addr", server.Addr), zap.Error(err))
				}
			}
			return nil
		},
	})
}

// processMessages batches events from NATS and hands full batches to a worker pool.
// Partial batches are flushed on a timer and when the consumer closes.
func processMessages(
	ctx context.Context,
	consumer *messaging.NATSConsumer,
	indexingService domain_service.IndexingService,
	logger *logger.Logger,
	cfg *config.Config,
) {
	msgChan := consumer.GetMessageChannel()
	batch := make([]*entity.ChainTransaction, 0, cfg.App.BatchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	jobChan := make(chan []*entity.ChainTransaction, cfg.App.WorkerPoolSize)
	var wg sync.WaitGroup

	for i := 0; i < cfg.App.WorkerPoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				// Batches in flight at shutdown still get written
				if err := indexingService.ProcessTransactionBatch(context.WithoutCancel(ctx), job); err != nil {
					logger.Error("Failed to process transaction batch",
						zap.Error(err),
						zap.Int("worker_id", workerID),
						zap.Int("batch_size", len(job)))
				}
			}
		}(i)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		job := make([]*entity.ChainTransaction, len(batch))
		copy(job, batch)
		jobChan <- job
		batch = batch[:0]
	}
	finish := func() {
		flush()
		close(jobChan)
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return

		case tx, ok := <-msgChan:
			if !ok {
				finish()
				return
			}
			batch = append(batch, tx)
			if len(batch) >= cfg.App.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
