package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/infrastructure/balancecache"
	"holdings_tracker/internal/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (entity.BalanceResult, bool) {
	return entity.BalanceResult{}, false
}
func (brokenCache) Set(context.Context, entity.BalanceResult) {}
func (brokenCache) Flush(context.Context) error { return errors.New("flush refused") }

func TestCachedFetcherServesHits(t *testing.T) {
	ctx := context.Background()
	inner := newMapFetcher(map[string]entity.BalanceResult{
		"rA": entity.NewFoundResult("rA", decimal.NewFromInt(7_000_000), 1, fixedNow),
	})
	f := NewCachedBalanceFetcher(inner, balancecache.NewMemoryCache(time.Minute, time.Minute), logger.Nop(), nil)

	first := f.Fetch(ctx, "rA")
	second := f.Fetch(ctx, "rA")

	assert.True(t, first.Balance.Equal(decimal.NewFromInt(7)))
	assert.True(t, second.Balance.Equal(first.Balance))
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedFetcherSkipsFailures(t *testing.T) {
	ctx := context.Background()
	inner := newMapFetcher(map[string]entity.BalanceResult{
		"rA": entity.NewExhaustedResult("rA", entity.ErrorNetworkTimeout, 3, fixedNow),
	})
	f := NewCachedBalanceFetcher(inner, balancecache.NewMemoryCache(time.Minute, time.Minute), logger.Nop(), nil)

	f.Fetch(ctx, "rA")
	r := f.Fetch(ctx, "rA")

	assert.True(t, r.Failed())
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedFetcherCachesNotFound(t *testing.T) {
	ctx := context.Background()
	inner := newMapFetcher(nil)
	f := NewCachedBalanceFetcher(inner, balancecache.NewMemoryCache(time.Minute, time.Minute), logger.Nop(), nil)

	f.Fetch(ctx, "rGhost")
	r := f.Fetch(ctx, "rGhost")

	assert.False(t, r.Found)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedFetcherInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := newMapFetcher(nil)
	f := NewCachedBalanceFetcher(inner, balancecache.NewMemoryCache(time.Minute, time.Minute), logger.Nop(), nil)

	f.Fetch(ctx, "rA")
	require.NoError(t, f.Invalidate(ctx))
	f.Fetch(ctx, "rA")

	assert.EqualValues(t, 2, inner.calls.Load())

	broken := NewCachedBalanceFetcher(inner, brokenCache{}, logger.Nop(), nil)
	assert.EqualError(t, broken.Invalidate(ctx), "flush refused")
}
