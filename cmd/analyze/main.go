package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	app_service "crypto-flow-forensics/internal/application/service"
	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
	"crypto-flow-forensics/internal/infrastructure/cache"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/database"
	"crypto-flow-forensics/internal/infrastructure/export"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/messaging"
	"crypto-flow-forensics/internal/infrastructure/metrics"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type options struct {
	ConfigFile    string        `long:"config" short:"c" env:"FORENSICS_CONFIG" description:"path to config.yaml, default search paths when empty"`
	Task          string        `long:"task" short:"t" required:"true" description:"task to run" choice:"deep_trace" choice:"find_paths" choice:"taint" choice:"detect_patterns" choice:"cluster" choice:"assess_risk" choice:"full_report"`
	Ledger        string        `long:"ledger" short:"l" description:"JSON file with an array of transactions; the stored ledger is used when empty"`
	Address       string        `long:"address" short:"a" description:"address under analysis: trace start, path and taint source, risk subject"`
	Target        string        `long:"target" description:"path and taint target"`
	Chain         string        `long:"chain" description:"restrict ledger loads to one chain"`
	Token         string        `long:"token" description:"restrict ledger loads to one currency"`
	Hops          int           `long:"hops" description:"neighbourhood loaded from the ledger, configured default when 0"`
	Direction     string        `long:"direction" default:"both" description:"trace direction" choice:"inflow" choice:"outflow" choice:"both"`
	MaxDepth      int           `long:"max-depth" description:"trace depth or path hops, configured default when 0"`
	MaxPaths      int           `long:"max-paths" description:"path budget, configured default when 0"`
	MinAmount     *float64      `long:"min-amount" description:"skip traced transfers below this amount"`
	IncludeCycles bool          `long:"include-cycles" description:"keep traced transfers that lead back to visited addresses"`
	Chronological bool          `long:"chronological" description:"only extend paths forward in time"`
	Remote        bool          `long:"remote" description:"submit the task to a worker over NATS instead of running it here"`
	Format        string        `long:"format" short:"f" default:"json" description:"output format" choice:"json" choice:"csv"`
	Output        string        `long:"output" short:"o" description:"write the result to this file instead of stdout"`
	Timeout       time.Duration `long:"timeout" default:"60s" description:"task timeout"`
}

func main() {
	var opts options
	if _, err := flags.ParseArgs(&opts, os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	dataset, err := buildDataset(opts)
	if err != nil {
		return err
	}
	req, err := buildRequest(opts, dataset)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var resp *entity.TaskResponse
	if opts.Remote {
		resp, err = submitRemote(ctx, cfg, req, log)
	} else {
		resp, err = executeLocal(ctx, cfg, req, log)
	}
	if err != nil {
		return err
	}
	if resp.Status != entity.TaskStatusSuccess {
		return fmt.Errorf("task %s failed: %s", resp.RequestID, resp.Error)
	}

	out := io.Writer(os.Stdout)
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeResult(out, req.TaskType, opts.Format, resp.Data)
}

// executeLocal runs the task in process. The stored ledger is only opened
// when the task needs it.
func executeLocal(ctx context.Context, cfg *config.Config, req *entity.TaskRequest, log *logger.Logger) (*entity.TaskResponse, error) {
	var repo repository.TransferRepository
	if needsLedger(req) {
		client := database.NewNeo4JClient(&cfg.Neo4J, log)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to Neo4J: %w", err)
		}
		defer func() {
			if err := client.Close(context.Background()); err != nil {
				log.Warn("Failed to close Neo4J connection", zap.Error(err))
			}
		}()
		repo = database.NewNeo4JTransferRepository(client, metrics.NewRepository(), log)
	}

	transfers, err := cache.NewTransferCache(cfg.Analysis.CacheSize, metrics.NewCache())
	if err != nil {
		return nil, err
	}

	svc := app_service.NewForensicsApplicationService(repo, transfers, &cfg.Analysis, metrics.NewTasks(), log)
	return svc.Execute(ctx, req), nil
}

func submitRemote(ctx context.Context, cfg *config.Config, req *entity.TaskRequest, log *logger.Logger) (*entity.TaskResponse, error) {
	client := messaging.NewNATSTaskClient(&cfg.NATS, log)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer client.Close()

	return client.Submit(ctx, req)
}

func needsLedger(req *entity.TaskRequest) bool {
	var probe struct {
		Dataset entity.Dataset `json:"dataset"`
	}
	if err := json.Unmarshal(req.Payload, &probe); err != nil {
		return false
	}
	return len(probe.Dataset.Transactions) == 0
}

func buildDataset(opts options) (entity.Dataset, error) {
	dataset := entity.Dataset{
		Address:     opts.Address,
		Chain:       opts.Chain,
		TokenFilter: opts.Token,
		Hops:        opts.Hops,
	}
	if opts.Ledger == "" {
		return dataset, nil
	}

	data, err := os.ReadFile(opts.Ledger)
	if err != nil {
		return dataset, fmt.Errorf("failed to read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &dataset.Transactions); err != nil {
		return dataset, fmt.Errorf("failed to parse ledger %s: %w", opts.Ledger, err)
	}
	if len(dataset.Transactions) == 0 {
		return dataset, fmt.Errorf("ledger %s has no transactions", opts.Ledger)
	}
	return dataset, nil
}

func buildRequest(opts options, dataset entity.Dataset) (*entity.TaskRequest, error) {
	taskType := entity.TaskType(opts.Task)

	var payload any
	switch taskType {
	case entity.TaskTypeDeepTrace:
		payload = entity.DeepTracePayload{
			Dataset: dataset,
			Config: entity.DeepTraceConfig{
				StartAddress:  opts.Address,
				Direction:     entity.TraceDirection(opts.Direction),
				MaxDepth:      opts.MaxDepth,
				MinAmount:     opts.MinAmount,
				IncludeCycles: opts.IncludeCycles,
			},
		}
	case entity.TaskTypeFindPaths:
		payload = entity.FindPathsPayload{
			Dataset: dataset,
			Config: entity.PathFinderConfig{
				Source:        opts.Address,
				Target:        opts.Target,
				MaxDepth:      opts.MaxDepth,
				MaxPaths:      opts.MaxPaths,
				Chronological: opts.Chronological,
			},
		}
	case entity.TaskTypeTaint:
		payload = entity.TaintPayload{Dataset: dataset, Source: opts.Address, Target: opts.Target, MaxHops: opts.MaxDepth}
	case entity.TaskTypeDetectPatterns, entity.TaskTypeCluster:
		payload = entity.DatasetPayload{Dataset: dataset}
	case entity.TaskTypeAssessRisk:
		payload = entity.AssessRiskPayload{Dataset: dataset, Address: opts.Address}
	case entity.TaskTypeFullReport:
		payload = entity.FullReportPayload{
			Dataset:   dataset,
			Address:   opts.Address,
			Target:    opts.Target,
			Direction: entity.TraceDirection(opts.Direction),
			MaxDepth:  opts.MaxDepth,
		}
	default:
		return nil, fmt.Errorf("unknown task %q", opts.Task)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &entity.TaskRequest{TaskType: taskType, Payload: raw}, nil
}

func writeResult(w io.Writer, taskType entity.TaskType, format string, data json.RawMessage) error {
	if format == "json" {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		pretty.WriteByte('\n')
		_, err := pretty.WriteTo(w)
		return err
	}

	switch taskType {
	case entity.TaskTypeFindPaths:
		var result entity.PathFinderResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("failed to decode paths: %w", err)
		}
		return export.WritePaths(w, result.Paths)
	case entity.TaskTypeTaint:
		var flow entity.TaintFlow
		if err := json.Unmarshal(data, &flow); err != nil {
			return fmt.Errorf("failed to decode taint flow: %w", err)
		}
		return export.WriteTaint(w, &flow)
	case entity.TaskTypeDetectPatterns:
		var patterns []entity.SuspiciousPattern
		if err := json.Unmarshal(data, &patterns); err != nil {
			return fmt.Errorf("failed to decode patterns: %w", err)
		}
		return export.WritePatterns(w, patterns)
	case entity.TaskTypeCluster:
		var clusters []entity.AddressCluster
		if err := json.Unmarshal(data, &clusters); err != nil {
			return fmt.Errorf("failed to decode clusters: %w", err)
		}
		return export.WriteClusters(w, clusters)
	default:
		return fmt.Errorf("csv output is not available for %s, use json", taskType)
	}
}
