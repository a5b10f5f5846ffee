package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"

	"github.com/shopspring/decimal"
)

// scriptedClient answers call n (0-based) with respond(n).
type scriptedClient struct {
	name    string
	calls   atomic.Int32
	respond func(call int) (entity.AccountBalance, error)
}

func (c *scriptedClient) AccountBalance(_ context.Context, address string) (entity.AccountBalance, error) {
	n := int(c.calls.Add(1)) - 1
	b, err := c.respond(n)
	b.Address = address
	return b, err
}

func (c *scriptedClient) Endpoint() entity.LedgerEndpoint {
	return entity.LedgerEndpoint{Name: c.name, URL: "http://" + c.name}
}

func found(drops int64) func(int) (entity.AccountBalance, error) {
	return func(int) (entity.AccountBalance, error) {
		return entity.AccountBalance{Drops: decimal.NewFromInt(drops), Found: true}, nil
	}
}

func notFound() func(int) (entity.AccountBalance, error) {
	return func(int) (entity.AccountBalance, error) {
		return entity.AccountBalance{}, nil
	}
}

func failing(kind entity.ErrorKind) func(int) (entity.AccountBalance, error) {
	return func(int) (entity.AccountBalance, error) {
		return entity.AccountBalance{}, entity.NewLookupError(kind, "fake", nil)
	}
}

type staticProvider []port.LedgerClient

func (p staticProvider) Clients() []port.LedgerClient { return p }

// mapFetcher returns canned results and tracks how many fetches run at once.
// A non-nil gate holds every fetch until it is closed.
type mapFetcher struct {
	results map[string]entity.BalanceResult
	delay   time.Duration
	gate    chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu         sync.Mutex
	perAddress map[string]int
}

func newMapFetcher(results map[string]entity.BalanceResult) *mapFetcher {
	return &mapFetcher{results: results, perAddress: map[string]int{}}
}

func (f *mapFetcher) Fetch(ctx context.Context, address string) entity.BalanceResult {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	f.mu.Lock()
	f.perAddress[address]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.delay):
		}
	}
	if f.gate != nil {
		select {
		case <-ctx.Done():
		case <-f.gate:
		}
	}
	if r, ok := f.results[address]; ok {
		return r
	}
	return entity.NewNotFoundResult(address, 1, time.Time{})
}

type stubRegistry struct {
	reg entity.Registry
	err error
}

func (s stubRegistry) GetRegistry() (entity.Registry, error) { return s.reg, s.err }

type stubBenchmark struct {
	bm  entity.Benchmark
	err error
}

func (s stubBenchmark) GetBenchmark() (entity.Benchmark, error) { return s.bm, s.err }

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}
