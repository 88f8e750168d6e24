package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Neo4J    Neo4JConfig    `mapstructure:"neo4j"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Health   HealthConfig   `mapstructure:"health"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig represents application-specific configuration
type AppConfig struct {
	Env            string `mapstructure:"env"`
	LogLevel       string `mapstructure:"log_level"`
	HTTPPort       int    `mapstructure:"http_port"`
	WorkerPoolSize int    `mapstructure:"worker_pool_size"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL                string        `mapstructure:"url"`
	StreamName         string        `mapstructure:"stream_name"`
	SubjectPrefix      string        `mapstructure:"subject_prefix"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	TaskSubject        string        `mapstructure:"task_subject"`
	TaskQueueGroup     string        `mapstructure:"task_queue_group"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	MaxPendingMessages int           `mapstructure:"max_pending_messages"`
	Enabled            bool          `mapstructure:"enabled"`
}

// Neo4JConfig represents Neo4J configuration
type Neo4JConfig struct {
	URI                          string        `mapstructure:"uri"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	Database                     string        `mapstructure:"database"`
	ConnectTimeout               time.Duration `mapstructure:"connect_timeout"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout"`
}

// AnalysisConfig holds the defaults applied to analysis tasks that leave a budget unset
type AnalysisConfig struct {
	DefaultMaxDepth     int           `mapstructure:"default_max_depth"`
	DefaultMaxPaths     int           `mapstructure:"default_max_paths"`
	DefaultTaintMaxHops int           `mapstructure:"default_taint_max_hops"`
	NeighborhoodHops    int           `mapstructure:"neighborhood_hops"`  // Hops loaded around an address when no inline data is given
	NeighborhoodLimit   int           `mapstructure:"neighborhood_limit"` // Max transfers loaded per dataset
	CacheSize           int           `mapstructure:"cache_size"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from the given yaml file, or from the default
// search paths when path is empty. Environment variables override both.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/crypto-flow-forensics")
	}

	// Map environment variables to nested config keys
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	if c.App.WorkerPoolSize < 1 {
		return fmt.Errorf("invalid app.worker_pool_size: must be at least 1, got %d", c.App.WorkerPoolSize)
	}
	if c.App.BatchSize < 1 {
		return fmt.Errorf("invalid app.batch_size: must be at least 1, got %d", c.App.BatchSize)
	}
	if c.Analysis.DefaultMaxDepth < 1 {
		return fmt.Errorf("invalid analysis.default_max_depth: must be at least 1, got %d", c.Analysis.DefaultMaxDepth)
	}
	if c.Analysis.DefaultMaxPaths < 1 {
		return fmt.Errorf("invalid analysis.default_max_paths: must be at least 1, got %d", c.Analysis.DefaultMaxPaths)
	}
	if c.Analysis.DefaultTaintMaxHops < 1 {
		return fmt.Errorf("invalid analysis.default_taint_max_hops: must be at least 1, got %d", c.Analysis.DefaultTaintMaxHops)
	}
	if c.Analysis.CacheSize < 1 {
		return fmt.Errorf("invalid analysis.cache_size: must be at least 1, got %d", c.Analysis.CacheSize)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_port", 8080)
	v.SetDefault("app.worker_pool_size", 10)
	v.SetDefault("app.batch_size", 100)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "TRANSACTIONS")
	v.SetDefault("nats.subject_prefix", "transactions")
	v.SetDefault("nats.consumer_group", "flow-forensics")
	v.SetDefault("nats.task_subject", "forensics.tasks")
	v.SetDefault("nats.task_queue_group", "forensics-workers")
	v.SetDefault("nats.connect_timeout", "10s")
	v.SetDefault("nats.reconnect_attempts", 5)
	v.SetDefault("nats.reconnect_delay", "2s")
	v.SetDefault("nats.max_pending_messages", 10000)
	v.SetDefault("nats.enabled", true)

	// Neo4J defaults
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.connect_timeout", "10s")
	v.SetDefault("neo4j.max_connection_pool_size", 50)
	v.SetDefault("neo4j.connection_acquisition_timeout", "60s")

	// Analysis defaults
	v.SetDefault("analysis.default_max_depth", 10)
	v.SetDefault("analysis.default_max_paths", 100)
	v.SetDefault("analysis.default_taint_max_hops", 10)
	v.SetDefault("analysis.neighborhood_hops", 3)
	v.SetDefault("analysis.neighborhood_limit", 5000)
	v.SetDefault("analysis.cache_size", 256)
	v.SetDefault("analysis.task_timeout", "60s")

	// Health defaults
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.timeout", "5s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Bind env for NATS URL
	_ = v.BindEnv("nats.url", "NATS_URL")
}
