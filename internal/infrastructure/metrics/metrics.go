// Package metrics exposes the prometheus collectors of the forensics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forensics"

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Count of executed analysis tasks.",
	}, []string{"task_type", "status"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Duration of analysis tasks.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"task_type", "status"})

	transfersIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_indexed_total",
		Help:      "Count of ledger transfers decoded from chain events.",
	}, []string{"kind"})

	repositoryOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repository_operations_total",
		Help:      "Count of ledger repository operations.",
	}, []string{"operation", "status"})

	repositoryOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "repository_operation_duration_seconds",
		Help:      "Duration of ledger repository operations.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "status"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Count of transfer cache lookups by result.",
	}, []string{"result"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Tasks tracks analysis task outcomes
type Tasks struct{}

// NewTasks creates a Tasks metrics collector
func NewTasks() *Tasks {
	return &Tasks{}
}

// Observe records the outcome and duration of one task
func (Tasks) Observe(taskType string, err error, started time.Time) {
	if taskType == "" {
		taskType = "unknown"
	}
	s := status(err)
	tasksTotal.WithLabelValues(taskType, s).Inc()
	taskDuration.WithLabelValues(taskType, s).Observe(time.Since(started).Seconds())
}

// Indexing tracks ingestion throughput
type Indexing struct{}

// NewIndexing creates an Indexing metrics collector
func NewIndexing() *Indexing {
	return &Indexing{}
}

// ObserveTransfers counts n decoded transfers of the given kind
func (Indexing) ObserveTransfers(kind string, n int) {
	if n <= 0 {
		return
	}
	transfersIndexedTotal.WithLabelValues(kind).Add(float64(n))
}

// Repository tracks ledger repository operations
type Repository struct{}

// NewRepository creates a Repository metrics collector
func NewRepository() *Repository {
	return &Repository{}
}

// Observe records duration and status of a repository operation
func (Repository) Observe(operation string, err error, started time.Time) {
	s := status(err)
	repositoryOperationsTotal.WithLabelValues(operation, s).Inc()
	repositoryOperationDuration.WithLabelValues(operation, s).Observe(time.Since(started).Seconds())
}

// Cache tracks transfer cache effectiveness
type Cache struct{}

// NewCache creates a Cache metrics collector
func NewCache() *Cache {
	return &Cache{}
}

// ObserveLookup records a cache hit or miss
func (Cache) ObserveLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
