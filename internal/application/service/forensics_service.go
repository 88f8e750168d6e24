package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-flow-forensics/internal/domain/analytics"
	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/repository"
	"crypto-flow-forensics/internal/domain/service"
	"crypto-flow-forensics/internal/infrastructure/cache"
	"crypto-flow-forensics/internal/infrastructure/config"
	"crypto-flow-forensics/internal/infrastructure/logger"
	"crypto-flow-forensics/internal/infrastructure/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyDataset is returned when a dataset names neither transactions, an address nor a time window
	ErrEmptyDataset = errors.New("dataset has no transactions, address or time window")

	// ErrNoLedger is returned when a dataset must be loaded but no repository is configured
	ErrNoLedger = errors.New("no ledger configured to load dataset")
)

// ForensicsApplicationService runs analysis tasks. It builds one index per
// task from the task's dataset and answers every request with a response,
// turning failures and panics into error responses.
type ForensicsApplicationService struct {
	transferRepo repository.TransferRepository
	cache        *cache.TransferCache
	config       *config.AnalysisConfig
	metrics      *metrics.Tasks
	logger       *logger.Logger
}

// NewForensicsApplicationService creates a new forensics application service.
// transferRepo and cache may be nil, in which case only inline datasets work.
func NewForensicsApplicationService(
	transferRepo repository.TransferRepository,
	cache *cache.TransferCache,
	cfg *config.AnalysisConfig,
	m *metrics.Tasks,
	logger *logger.Logger,
) service.ForensicsService {
	return &ForensicsApplicationService{
		transferRepo: transferRepo,
		cache:        cache,
		config:       cfg,
		metrics:      m,
		logger:       logger.WithComponent("forensics-service"),
	}
}

// Execute runs one task
func (s *ForensicsApplicationService) Execute(ctx context.Context, req *entity.TaskRequest) (resp *entity.TaskResponse) {
	started := time.Now()
	log := s.logger.WithTask(string(req.TaskType), req.RequestID)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			log.Error("Recovered from task panic", zap.Any("panic", r), zap.Stack("stack"))
			resp = errorResponse(req.RequestID, err)
		}
		s.metrics.Observe(metricLabel(req.TaskType), err, started)
	}()

	var result any
	result, err = s.run(ctx, req)
	if err != nil {
		log.Warn("Task failed", zap.Error(err))
		return errorResponse(req.RequestID, err)
	}

	var data []byte
	data, err = json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("failed to encode task result: %w", err)
		log.Error("Task result not encodable", zap.Error(err))
		return errorResponse(req.RequestID, err)
	}

	log.Debug("Task completed", zap.Duration("duration", time.Since(started)))
	return &entity.TaskResponse{
		Status:    entity.TaskStatusSuccess,
		RequestID: req.RequestID,
		Data:      data,
	}
}

func (s *ForensicsApplicationService) run(ctx context.Context, req *entity.TaskRequest) (any, error) {
	switch req.TaskType {
	case entity.TaskTypeDeepTrace:
		var p entity.DeepTracePayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.DeepTrace(idx, s.traceDefaults(p.Config, p.Dataset))

	case entity.TaskTypeFindPaths:
		var p entity.FindPathsPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.FindPaths(idx, s.pathDefaults(p.Config))

	case entity.TaskTypeTaint:
		var p entity.TaintPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.CalculateTaint(idx, p.Source, p.Target, s.orDefault(p.MaxHops, s.config.DefaultTaintMaxHops))

	case entity.TaskTypeDetectPatterns:
		var p entity.DatasetPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.DetectPatterns(idx), nil

	case entity.TaskTypeCluster:
		var p entity.DatasetPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.ClusterAddresses(idx), nil

	case entity.TaskTypeAssessRisk:
		var p entity.AssessRiskPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		address := firstNonEmpty(p.Address, p.Dataset.Address)
		if address == "" {
			return nil, fmt.Errorf("assess_risk requires an address")
		}
		idx, err := s.loadIndex(ctx, p.Dataset)
		if err != nil {
			return nil, err
		}
		return analytics.AssessAddressRisk(idx, address, analytics.DetectPatterns(idx)), nil

	case entity.TaskTypeFullReport:
		var p entity.FullReportPayload
		if err := decodePayload(req, &p); err != nil {
			return nil, err
		}
		return s.fullReport(ctx, p)

	default:
		return nil, fmt.Errorf("unknown task type %q", req.TaskType)
	}
}

// fullReport runs every analysis for one address concurrently over a shared index
func (s *ForensicsApplicationService) fullReport(ctx context.Context, p entity.FullReportPayload) (*entity.FullReport, error) {
	address := firstNonEmpty(p.Address, p.Dataset.Address)
	if address == "" {
		return nil, fmt.Errorf("full_report requires an address")
	}

	idx, err := s.loadIndex(ctx, p.Dataset)
	if err != nil {
		return nil, err
	}

	report := &entity.FullReport{Address: address}
	var g errgroup.Group

	goRecovered(&g, func() error {
		trace, err := analytics.DeepTrace(idx, s.traceDefaults(entity.DeepTraceConfig{
			StartAddress: address,
			Direction:    p.Direction,
			MaxDepth:     p.MaxDepth,
		}, p.Dataset))
		if err != nil {
			return fmt.Errorf("failed to trace %s: %w", address, err)
		}
		report.Trace = trace
		return nil
	})

	goRecovered(&g, func() error {
		report.Patterns = analytics.DetectPatterns(idx)
		report.Risk = analytics.AssessAddressRisk(idx, address, report.Patterns)
		return nil
	})

	goRecovered(&g, func() error {
		report.Clusters = analytics.ClusterAddresses(idx)
		return nil
	})

	if p.Target != "" {
		goRecovered(&g, func() error {
			paths, err := analytics.FindPaths(idx, s.pathDefaults(entity.PathFinderConfig{
				Source:   address,
				Target:   p.Target,
				MaxDepth: p.MaxDepth,
			}))
			if err != nil {
				return fmt.Errorf("failed to find paths to %s: %w", p.Target, err)
			}
			report.Paths = paths
			return nil
		})

		goRecovered(&g, func() error {
			taint, err := analytics.CalculateTaint(idx, address, p.Target, s.orDefault(p.MaxDepth, s.config.DefaultTaintMaxHops))
			if err != nil {
				return fmt.Errorf("failed to calculate taint to %s: %w", p.Target, err)
			}
			report.Taint = taint
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// loadIndex builds the index for a dataset, loading it from the ledger when it
// is not given inline. Neighbourhood loads at the configured hop count go
// through the cache.
func (s *ForensicsApplicationService) loadIndex(ctx context.Context, ds entity.Dataset) (*analytics.Index, error) {
	if len(ds.Transactions) > 0 {
		return analytics.BuildIndex(ds.Transactions), nil
	}
	if ds.Address == "" && ds.TimeWindow == nil {
		return nil, ErrEmptyDataset
	}
	if s.transferRepo == nil {
		return nil, ErrNoLedger
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ds.Address == "" {
		transfers, err := s.transferRepo.GetTransfersByTimeRange(ctx, ds.TimeWindow.Start, ds.TimeWindow.End, s.config.NeighborhoodLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset: %w", err)
		}
		return analytics.BuildIndex(transfers), nil
	}

	cacheable := s.cache != nil && (ds.Hops == 0 || ds.Hops == s.config.NeighborhoodHops)
	key := cache.Key{Address: ds.Address, Chain: ds.Chain, TokenFilter: ds.TokenFilter}
	if cacheable {
		if transfers, ok := s.cache.Get(key); ok {
			return analytics.BuildIndex(transfers), nil
		}
	}

	transfers, err := s.transferRepo.GetTransfersForAddress(ctx, repository.TransferQuery{
		Address:     ds.Address,
		Chain:       ds.Chain,
		TokenFilter: ds.TokenFilter,
		MaxHops:     s.orDefault(ds.Hops, s.config.NeighborhoodHops),
		Limit:       s.config.NeighborhoodLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if cacheable {
		s.cache.Put(key, transfers)
	}

	s.logger.Debug("Loaded dataset from ledger",
		zap.String("address", ds.Address),
		zap.Int("transfers", len(transfers)))
	return analytics.BuildIndex(transfers), nil
}

func (s *ForensicsApplicationService) traceDefaults(cfg entity.DeepTraceConfig, ds entity.Dataset) entity.DeepTraceConfig {
	cfg.StartAddress = firstNonEmpty(cfg.StartAddress, ds.Address)
	if cfg.Direction == "" {
		cfg.Direction = entity.TraceDirectionBoth
	}
	cfg.MaxDepth = s.orDefault(cfg.MaxDepth, s.config.DefaultMaxDepth)
	return cfg
}

func (s *ForensicsApplicationService) pathDefaults(cfg entity.PathFinderConfig) entity.PathFinderConfig {
	cfg.MaxDepth = s.orDefault(cfg.MaxDepth, s.config.DefaultMaxDepth)
	cfg.MaxPaths = s.orDefault(cfg.MaxPaths, s.config.DefaultMaxPaths)
	return cfg
}

// orDefault substitutes fallback for an unset (zero) budget. Negative values
// are passed through so validation can reject them.
func (s *ForensicsApplicationService) orDefault(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func decodePayload(req *entity.TaskRequest, v any) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("%s task has no payload", req.TaskType)
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", req.TaskType, err)
	}
	return nil
}

func errorResponse(requestID string, err error) *entity.TaskResponse {
	return &entity.TaskResponse{
		Status:    entity.TaskStatusError,
		RequestID: requestID,
		Error:     err.Error(),
	}
}

// metricLabel keeps arbitrary task types out of metric labels
func metricLabel(taskType entity.TaskType) string {
	switch taskType {
	case entity.TaskTypeDeepTrace, entity.TaskTypeFindPaths, entity.TaskTypeTaint,
		entity.TaskTypeDetectPatterns, entity.TaskTypeCluster, entity.TaskTypeAssessRisk,
		entity.TaskTypeFullReport:
		return string(taskType)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// goRecovered runs fn on g, reporting a panic as the step's error since the
// recover in Execute does not see other goroutines
func goRecovered(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("report step panicked: %v", r)
			}
		}()
		return fn()
	})
}
