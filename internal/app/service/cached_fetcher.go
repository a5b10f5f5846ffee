package service

import (
	"context"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/infrastructure/metrics"
)

// CachedBalanceFetcher serves recent results from a BalanceCache and falls through to the
// wrapped fetcher on a miss. Exhausted results are never stored.
type CachedBalanceFetcher struct {
	next    port.BalanceFetcher
	cache   port.BalanceCache
	logger  port.Logger
	metrics *metrics.Metrics
}

// NewCachedBalanceFetcher wraps next with cache.
func NewCachedBalanceFetcher(next port.BalanceFetcher, cache port.BalanceCache, logger port.Logger, m *metrics.Metrics) *CachedBalanceFetcher {
	return &CachedBalanceFetcher{next: next, cache: cache, logger: logger, metrics: m}
}

// Fetch implements port.BalanceFetcher.
func (f *CachedBalanceFetcher) Fetch(ctx context.Context, address string) entity.BalanceResult {
	if cached, ok := f.cache.Get(ctx, address); ok {
		f.metrics.ObserveCacheLookup(true)
		return cached
	}
	f.metrics.ObserveCacheLookup(false)

	result := f.next.Fetch(ctx, address)
	if !result.Failed() {
		f.cache.Set(ctx, result)
	}
	return result
}

// Invalidate drops every cached balance.
func (f *CachedBalanceFetcher) Invalidate(ctx context.Context) error {
	if err := f.cache.Flush(ctx); err != nil {
		f.logger.Error("Failed to flush balance cache", "error", err)
		return err
	}
	f.logger.Info("Balance cache flushed")
	return nil
}
