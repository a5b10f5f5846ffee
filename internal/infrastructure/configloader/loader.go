package configloader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// DefaultEndpoints are the public rippled servers used when the config names none.
var DefaultEndpoints = []entity.LedgerEndpoint{
	{Name: "s1", URL: "https://s1.ripple.com:51234"},
	{Name: "s2", URL: "https://s2.ripple.com:51234"},
	{Name: "xrplcluster", URL: "https://xrplcluster.com"},
}

// ServerConfig holds the server-specific configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
	Pprof        bool   `yaml:"pprof"` // mounts /debug/pprof
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
}

// LedgerConfig holds the rippled endpoints and per-request limits.
type LedgerConfig struct {
	Endpoints            []entity.LedgerEndpoint `yaml:"endpoints"`
	RequestTimeoutMillis int64                   `yaml:"requestTimeoutMillis"`
	RateLimit            float64                 `yaml:"rateLimit"` // requests per second per endpoint
	BurstLimit           int                     `yaml:"burstLimit"`
	MaxConnsPerHost      int                     `yaml:"maxConnsPerHost"`
}

// RetryConfig holds the backoff policy layered over the endpoint list.
type RetryConfig struct {
	MaxRetries           int     `yaml:"maxRetries"` // full passes over the endpoint list
	InitialBackoffMillis int64   `yaml:"initialBackoffMillis"`
	MaxBackoffMillis     int64   `yaml:"maxBackoffMillis"`
	Multiplier           float64 `yaml:"multiplier"`
	FetchBudgetMillis    int64   `yaml:"fetchBudgetMillis"` // wall-time cap per address, all rounds included
}

// PerformanceConfig holds performance-related configurations.
type PerformanceConfig struct {
	MaxConcurrentRequests  int `yaml:"maxConcurrentRequests"`
	SnapshotMaxAgeSeconds  int `yaml:"snapshotMaxAgeSeconds"`
	RefreshIntervalSeconds int `yaml:"refreshIntervalSeconds"` // 0 disables background refresh
	RefreshTimeoutSeconds  int `yaml:"refreshTimeoutSeconds"`
}

// RedisConfig holds connection settings for the shared balance cache.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// CacheConfig holds configuration for the balance cache.
type CacheConfig struct {
	Backend                string      `yaml:"backend"`
	TTLSeconds             int         `yaml:"ttlSeconds"`
	CleanupIntervalSeconds int         `yaml:"cleanupIntervalSeconds"`
	Redis                  RedisConfig `yaml:"redis"`
}

// FileConfig points at a data file.
type FileConfig struct {
	Path string `yaml:"path"`
}

// Config holds the overall configuration for the application.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Retry       RetryConfig       `yaml:"retry"`
	Performance PerformanceConfig `yaml:"performance"`
	Cache       CacheConfig       `yaml:"cache"`
	Registry    FileConfig        `yaml:"registry"`
	Benchmark   FileConfig        `yaml:"benchmark"`
}

// RequestTimeout returns the per-endpoint request bound.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Ledger.RequestTimeoutMillis) * time.Millisecond
}

// CacheTTL returns the balance freshness window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// SnapshotMaxAge returns how long a snapshot is served before Latest refreshes it.
func (c *Config) SnapshotMaxAge() time.Duration {
	return time.Duration(c.Performance.SnapshotMaxAgeSeconds) * time.Second
}

// FetchBudget returns the time one address may take across all endpoints and rounds.
func (c *Config) FetchBudget() time.Duration {
	return time.Duration(c.Retry.FetchBudgetMillis) * time.Millisecond
}

// RefreshTimeout bounds a whole refresh cycle.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.Performance.RefreshTimeoutSeconds) * time.Second
}

// RefreshInterval returns the background refresh period, zero when disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Performance.RefreshIntervalSeconds) * time.Second
}

// Load reads the YAML configuration file from the given path, applies env overrides and defaults,
// and validates the result. Variables from an optional .env file are loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		logrus.Errorf("Failed to load config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	logrus.Info("Configuration loaded successfully.")
	return cfg, nil
}

// Parse decodes YAML config data and finishes it the same way Load does, without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Logging.Level = utils.GetEnv("HOLDINGS_LOG_LEVEL", cfg.Logging.Level)
	cfg.Server.Port = utils.GetEnv("HOLDINGS_SERVER_PORT", cfg.Server.Port)
	cfg.Cache.Backend = utils.GetEnv("HOLDINGS_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.Redis.Addr = utils.GetEnv("HOLDINGS_REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Performance.MaxConcurrentRequests = utils.GetEnvAsInt("HOLDINGS_MAX_CONCURRENT_REQUESTS", cfg.Performance.MaxConcurrentRequests)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	// refresh can run for a while: the write timeout must outlive one cycle
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 120
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if len(cfg.Ledger.Endpoints) == 0 {
		cfg.Ledger.Endpoints = append([]entity.LedgerEndpoint(nil), DefaultEndpoints...)
		logrus.Infof("No ledger endpoints configured, defaulting to %d public servers", len(cfg.Ledger.Endpoints))
	}
	if cfg.Ledger.RequestTimeoutMillis <= 0 {
		cfg.Ledger.RequestTimeoutMillis = 10000
		logrus.Infof("Ledger.RequestTimeoutMillis not set, defaulting to %d ms", cfg.Ledger.RequestTimeoutMillis)
	}
	if cfg.Ledger.RateLimit <= 0 {
		cfg.Ledger.RateLimit = 20
	}
	if cfg.Ledger.BurstLimit <= 0 {
		cfg.Ledger.BurstLimit = 20
	}
	if cfg.Ledger.MaxConnsPerHost <= 0 {
		cfg.Ledger.MaxConnsPerHost = 32
	}

	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 3
		logrus.Infof("Retry.MaxRetries not set, defaulting to %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialBackoffMillis <= 0 {
		cfg.Retry.InitialBackoffMillis = 1000
	}
	if cfg.Retry.MaxBackoffMillis <= 0 {
		cfg.Retry.MaxBackoffMillis = 8000
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 2
	}
	// без бюджета 3 раунда по 3 эндпоинта тянутся больше полутора минут
	if cfg.Retry.FetchBudgetMillis <= 0 {
		cfg.Retry.FetchBudgetMillis = 30000
		logrus.Infof("Retry.FetchBudgetMillis not set, defaulting to %d ms", cfg.Retry.FetchBudgetMillis)
	}

	if cfg.Performance.MaxConcurrentRequests <= 0 {
		cfg.Performance.MaxConcurrentRequests = 20
		logrus.Infof("Performance.MaxConcurrentRequests not set, defaulting to %d", cfg.Performance.MaxConcurrentRequests)
	}
	if cfg.Performance.SnapshotMaxAgeSeconds <= 0 {
		cfg.Performance.SnapshotMaxAgeSeconds = 300
	}
	if cfg.Performance.RefreshIntervalSeconds < 0 {
		cfg.Performance.RefreshIntervalSeconds = 0
	}
	if cfg.Performance.RefreshTimeoutSeconds <= 0 {
		cfg.Performance.RefreshTimeoutSeconds = 600
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendMemory
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 300
		logrus.Infof("Cache.TTLSeconds not set, defaulting to %d seconds", cfg.Cache.TTLSeconds)
	}
	if cfg.Cache.CleanupIntervalSeconds <= 0 {
		cfg.Cache.CleanupIntervalSeconds = 600
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = "holdings:balance:"
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "data/registry.yaml"
	}
	if cfg.Benchmark.Path == "" {
		cfg.Benchmark.Path = "data/benchmark.json"
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	for i, ep := range c.Ledger.Endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			return fmt.Errorf("ledger endpoint #%d (%s) has no url", i+1, ep.Name)
		}
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
