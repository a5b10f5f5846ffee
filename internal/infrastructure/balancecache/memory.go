package balancecache

import (
	"context"
	"time"

	"holdings_tracker/internal/domain/entity"

	"github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process port.BalanceCache with a fixed freshness window.
type MemoryCache struct {
	items *cache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: cache.New(ttl, cleanupInterval)}
}

// Get returns the cached result for address, if still fresh.
func (m *MemoryCache) Get(_ context.Context, address string) (entity.BalanceResult, bool) {
	v, ok := m.items.Get(address)
	if !ok {
		return entity.BalanceResult{}, false
	}
	r, ok := v.(entity.BalanceResult)
	return r, ok
}

// Set stores result under its address with the default expiration.
func (m *MemoryCache) Set(_ context.Context, result entity.BalanceResult) {
	m.items.Set(result.Address, result, cache.DefaultExpiration)
}

// Flush removes every entry.
func (m *MemoryCache) Flush(context.Context) error {
	m.items.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until the janitor runs.
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}
