package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// CacheInvalidator drops cached balances. *CachedBalanceFetcher implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SnapshotServiceImpl implements port.SnapshotService.
type SnapshotServiceImpl struct {
	registryProvider  port.RegistryProvider
	benchmarkProvider port.BenchmarkProvider
	orchestrator      *FetchOrchestrator
	aggregator        *Aggregator
	invalidator       CacheInvalidator
	logger            port.Logger
	metrics           *metrics.Metrics
	maxAge            time.Duration
	cycleTimeout      time.Duration
	now               func() time.Time

	// cycles run on the service lifetime, not on the context of whoever started them
	lifetime context.Context
	stop     context.CancelFunc

	refreshGroup singleflight.Group
	cycleSeq     atomic.Uint64

	mu        sync.RWMutex
	latest    *entity.SnapshotRecord
	latestSeq uint64

	running       atomic.Int32
	progressDone  atomic.Int64
	progressTotal atomic.Int64
}

// NewSnapshotService creates a new instance of SnapshotServiceImpl. invalidator may be nil
// when balances are not cached. cycleTimeout bounds one refresh cycle; zero means no bound.
func NewSnapshotService(
	rp port.RegistryProvider,
	bp port.BenchmarkProvider,
	orchestrator *FetchOrchestrator,
	aggregator *Aggregator,
	invalidator CacheInvalidator,
	maxAge time.Duration,
	cycleTimeout time.Duration,
	l port.Logger,
	m *metrics.Metrics,
) *SnapshotServiceImpl {
	lifetime, stop := context.WithCancel(context.Background())
	return &SnapshotServiceImpl{
		registryProvider:  rp,
		benchmarkProvider: bp,
		orchestrator:      orchestrator,
		aggregator:        aggregator,
		invalidator:       invalidator,
		logger:            l,
		metrics:           m,
		maxAge:            maxAge,
		cycleTimeout:      cycleTimeout,
		now:               time.Now,
		lifetime:          lifetime,
		stop:              stop,
	}
}

// Close aborts the cycle in flight, if any. Later refreshes fail immediately.
func (s *SnapshotServiceImpl) Close() {
	s.stop()
}

// Refresh runs one fetch-and-aggregate cycle. Concurrent callers share the cycle in flight.
// Cancelling ctx only stops this caller from waiting; the cycle keeps running for the others.
func (s *SnapshotServiceImpl) Refresh(ctx context.Context) (*entity.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-s.refreshGroup.DoChan(refreshKey, s.runCycle):
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Joined refresh already in flight")
		}
		return res.Val.(*entity.SnapshotRecord), nil
	}
}

func (s *SnapshotServiceImpl) runCycle() (any, error) {
	ctx := s.lifetime
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}
	return s.refresh(ctx)
}

// refreshInBackground starts a cycle unless one is already running and returns at once.
func (s *SnapshotServiceImpl) refreshInBackground() {
	ch := s.refreshGroup.DoChan(refreshKey, s.runCycle)
	go func() {
		res := <-ch
		if res.Err != nil && s.lifetime.Err() == nil {
			s.logger.Error("Background refresh failed", "error", res.Err)
		}
	}()
}

func (s *SnapshotServiceImpl) refresh(ctx context.Context) (*entity.SnapshotRecord, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	seq := s.cycleSeq.Add(1)

	registry, err := s.registryProvider.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("registry is unusable: %w", err)
	}

	log := s.logger.With("cycle_id", cycleID)

	benchmark, err := s.benchmarkProvider.GetBenchmark()
	if err != nil {
		// без бенчмарка просто нет исторического сравнения
		log.Error("Benchmark unavailable, continuing without historical comparison", "error", err)
		benchmark = entity.Benchmark{}
	}

	entries := registry.Entries()
	log.Info("Refresh cycle started", "groups", len(registry.Groups), "addresses", len(entries))

	s.progressDone.Store(0)
	s.progressTotal.Store(int64(len(entries)))
	s.running.Add(1)
	defer s.running.Add(-1)

	// after an invalidation two cycles may overlap; progress follows the newest
	results, err := s.orchestrator.FetchAll(ctx, entries, func(done, _ int) {
		if s.cycleSeq.Load() == seq {
			s.progressDone.Store(int64(done))
		}
	})
	if err != nil {
		log.Warn("Refresh cycle abandoned", "error", err)
		return nil, fmt.Errorf("refresh cycle %s abandoned: %w", cycleID, err)
	}

	snapshot := s.aggregator.Aggregate(results, registry, benchmark)
	record := &entity.SnapshotRecord{
		CycleID:       cycleID,
		Snapshot:      snapshot,
		ReferenceDate: benchmark.ReferenceDate,
		Addresses:     len(results),
		Failed:        snapshot.ErrorCount(),
		Duration:      time.Since(start),
	}
	if !s.publish(seq, record) {
		log.Info("Refresh cycle superseded by a newer one", "took", record.Duration.String())
		return record, nil
	}

	log.Info("Refresh cycle completed",
		"groups", len(snapshot.Groups),
		"total_balance", snapshot.TotalBalance.String(),
		"failed", record.Failed,
		"took", record.Duration.String())
	return record, nil
}

// publish stores record unless a cycle started later has already been published.
func (s *SnapshotServiceImpl) publish(seq uint64, record *entity.SnapshotRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.latestSeq {
		return false
	}
	s.latest = record
	s.latestSeq = seq

	s.metrics.ObserveRefresh(record.Duration)
	s.metrics.ResetGroups()
	for _, g := range record.Snapshot.Groups {
		s.metrics.SetGroup(g.Name, g.TotalBalance.InexactFloat64(), g.ErrorCount)
	}
	return true
}

// Current returns the last completed cycle, or nil if none has finished yet.
func (s *SnapshotServiceImpl) Current() *entity.SnapshotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Latest returns the last completed cycle. A stale one is still returned while a refresh
// runs in the background; only the very first call waits for a cycle.
func (s *SnapshotServiceImpl) Latest(ctx context.Context) (*entity.SnapshotRecord, error) {
	latest := s.Current()
	if latest == nil {
		return s.Refresh(ctx)
	}

	if s.maxAge > 0 && s.now().Sub(latest.Snapshot.GeneratedAt) >= s.maxAge {
		s.refreshInBackground()
	}
	return latest, nil
}

// Invalidate drops cached balances. The stored snapshot stays until the next refresh replaces it.
// A cycle already in flight may have read the old cache, so the next Refresh starts its own.
func (s *SnapshotServiceImpl) Invalidate(ctx context.Context) error {
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			return err
		}
	}
	s.refreshGroup.Forget(refreshKey)
	return nil
}

// Progress reports the state of the running cycle, or the last one when idle.
func (s *SnapshotServiceImpl) Progress() entity.RefreshProgress {
	return entity.RefreshProgress{
		Running: s.running.Load() > 0,
		Done:    int(s.progressDone.Load()),
		Total:   int(s.progressTotal.Load()),
	}
}

// GroupNames lists registry groups in file order.
func (s *SnapshotServiceImpl) GroupNames() ([]string, error) {
	registry, err := s.registryProvider.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return registry.GroupNames(), nil
}

// Run refreshes every interval until ctx is done. The first cycle starts immediately.
// interval must be positive.
func (s *SnapshotServiceImpl) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Scheduled refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduled refresh stopped")
			return
		case <-ticker.C:
		}
	}
}
