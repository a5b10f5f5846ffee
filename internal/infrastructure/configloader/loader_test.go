package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultEndpoints, cfg.Ledger.Endpoints)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 30*time.Second, cfg.FetchBudget())
	assert.Equal(t, 10*time.Minute, cfg.RefreshTimeout())
	assert.Equal(t, 20, cfg.Performance.MaxConcurrentRequests)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, "data/registry.yaml", cfg.Registry.Path)
	assert.Equal(t, "data/benchmark.json", cfg.Benchmark.Path)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	data := []byte(`
ledger:
  endpoints:
    - name: local
      url: http://127.0.0.1:5005
  requestTimeoutMillis: 2500
retry:
  maxRetries: 1
performance:
  maxConcurrentRequests: 5
cache:
  backend: Redis
  redis:
    addr: redis:6379
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	require.Len(t, cfg.Ledger.Endpoints, 1)
	assert.Equal(t, "http://127.0.0.1:5005", cfg.Ledger.Endpoints[0].URL)
	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout())
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 5, cfg.Performance.MaxConcurrentRequests)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("HOLDINGS_LOG_LEVEL", "warn")
	t.Setenv("HOLDINGS_CACHE_BACKEND", "none")
	t.Setenv("HOLDINGS_MAX_CONCURRENT_REQUESTS", "7")

	cfg, err := Parse([]byte("logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, CacheBackendNone, cfg.Cache.Backend)
	assert.Equal(t, 7, cfg.Performance.MaxConcurrentRequests)
}

func TestParseRejectsBadConfig(t *testing.T) {
	_, err := Parse([]byte("cache:\n  backend: memcached\n"))
	assert.ErrorContains(t, err, "unknown cache backend")

	_, err = Parse([]byte("ledger:\n  endpoints:\n    - name: broken\n"))
	assert.ErrorContains(t, err, "has no url")

	_, err = Parse([]byte("ledger: [not, a, map"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \":9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.Ledger.Endpoints, 3)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval())
	assert.Equal(t, 5*time.Minute, cfg.SnapshotMaxAge())
	assert.False(t, cfg.Server.Pprof)
}

// один адрес не должен занимать больше нескольких десятков секунд
func TestShippedConfigBoundsWorstCasePerAddress(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	budget := cfg.FetchBudget()
	require.Positive(t, budget)
	assert.LessOrEqual(t, budget, 45*time.Second)

	unbounded := time.Duration(cfg.Retry.MaxRetries*len(cfg.Ledger.Endpoints)) * cfg.RequestTimeout()
	assert.Less(t, budget, unbounded)
	assert.Greater(t, cfg.RefreshTimeout(), budget)
}

func TestNegativeRefreshIntervalDisablesIt(t *testing.T) {
	cfg, err := Parse([]byte("performance:\n  refreshIntervalSeconds: -5\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.RefreshInterval())
}
