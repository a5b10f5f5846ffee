package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/app/provider"
	"holdings_tracker/internal/app/service"
	"holdings_tracker/internal/infrastructure/balancecache"
	"holdings_tracker/internal/infrastructure/benchmarkloader"
	"holdings_tracker/internal/infrastructure/configloader"
	ledgerclient "holdings_tracker/internal/infrastructure/ledger/client"
	"holdings_tracker/internal/infrastructure/metrics"
	"holdings_tracker/internal/infrastructure/registryloader"
	"holdings_tracker/internal/infrastructure/restapi"
	"holdings_tracker/internal/pkg/logger"
	"holdings_tracker/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загрузка конфигурации (logrus пишет, пока zap ещё не настроен)
	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.NewZap(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger.InitSlog(zapLogger)

	logger.Info("Holdings tracker starting", "config", cfgPath, "endpoints", len(cfg.Ledger.Endpoints))

	m := metrics.New(prometheus.DefaultRegisterer)
	appLogger := logger.NewSlogAdapter(nil)

	registryProvider := provider.NewRegistryProvider(
		registryloader.NewRegistryFileLoader(cfg.Registry.Path, appLogger.Info),
		logger.Named(zapLogger, "registry"),
	)
	if _, err := registryProvider.GetRegistry(); err != nil {
		logger.Fatal("Registry is unusable", "path", cfg.Registry.Path, "error", err)
	}
	benchmarkProvider := provider.NewBenchmarkProvider(
		benchmarkloader.NewBenchmarkFileLoader(cfg.Benchmark.Path, appLogger.Info, appLogger.Warn),
		logger.Named(zapLogger, "benchmark"),
	)

	clients := ledgerclient.NewClientProvider(cfg, zapLogger, m)
	var fetcher port.BalanceFetcher = service.NewLedgerBalanceFetcher(
		clients,
		service.RetryPolicyFromConfig(cfg),
		logger.Named(zapLogger, "fetcher"),
		m,
	)

	var invalidator service.CacheInvalidator
	if cache := newBalanceCache(ctx, cfg, zapLogger); cache != nil {
		cached := service.NewCachedBalanceFetcher(fetcher, cache, logger.Named(zapLogger, "cache"), m)
		fetcher = cached
		invalidator = cached
	}

	orchestrator := service.NewFetchOrchestrator(fetcher, cfg.Performance.MaxConcurrentRequests, logger.Named(zapLogger, "orchestrator"))
	snapshotService := service.NewSnapshotService(
		registryProvider,
		benchmarkProvider,
		orchestrator,
		service.NewAggregator(),
		invalidator,
		cfg.SnapshotMaxAge(),
		cfg.RefreshTimeout(),
		logger.Named(zapLogger, "snapshot"),
		m,
	)

	if interval := cfg.RefreshInterval(); interval > 0 {
		go snapshotService.Run(ctx, interval)
		logger.Info("Background refresh enabled", "interval", interval.String())
	} else {
		// первый снапшот строим сразу, чтобы не ждать первого запроса
		go func() {
			if _, err := snapshotService.Refresh(ctx); err != nil {
				logger.Error("Initial refresh failed", "error", err)
			}
		}()
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := restapi.NewSnapshotHandler(snapshotService, logger.Named(zapLogger, "api"), time.Duration(cfg.Server.WriteTimeout)*time.Second)
	router := restapi.SetupRouter(handler, zapLogger, restapi.RouterOptions{
		MetricsHandler: promhttp.Handler(),
		EnablePprof:    cfg.Server.Pprof,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	cancel()
	snapshotService.Close()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}

// newBalanceCache returns the configured cache, or nil when caching is off.
// An unreachable redis falls back to the in-process cache.
func newBalanceCache(ctx context.Context, cfg *configloader.Config, zapLogger *zap.Logger) port.BalanceCache {
	memory := func() port.BalanceCache {
		return balancecache.NewMemoryCache(cfg.CacheTTL(), time.Duration(cfg.Cache.CleanupIntervalSeconds)*time.Second)
	}

	switch cfg.Cache.Backend {
	case configloader.CacheBackendNone:
		zapLogger.Info("Balance cache disabled")
		return nil
	case configloader.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		cache := balancecache.NewRedisCache(client, cfg.Cache.Redis.KeyPrefix, cfg.CacheTTL(), zapLogger)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := cache.Ping(pingCtx); err != nil {
			zapLogger.Warn("Redis unavailable, using in-memory balance cache",
				zap.String("addr", cfg.Cache.Redis.Addr), zap.Error(err))
			_ = client.Close()
			return memory()
		}
		zapLogger.Info("Using redis balance cache", zap.String("addr", cfg.Cache.Redis.Addr))
		return cache
	default:
		zapLogger.Info("Using in-memory balance cache", zap.Duration("ttl", cfg.CacheTTL()))
		return memory()
	}
}
