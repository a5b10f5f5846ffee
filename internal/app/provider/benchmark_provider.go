package provider

import (
	"sync"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
)

type benchmarkProviderImpl struct {
	source port.BenchmarkProvider
	logger port.Logger

	once      sync.Once
	benchmark entity.Benchmark
	err       error
}

// NewBenchmarkProvider creates a BenchmarkProvider that reads the benchmark once.
// The benchmark is a fixed snapshot, so it is never re-read during the process lifetime.
func NewBenchmarkProvider(source port.BenchmarkProvider, logger port.Logger) port.BenchmarkProvider {
	return &benchmarkProviderImpl{source: source, logger: logger}
}

// GetBenchmark returns the benchmark, or the error from the first load.
func (p *benchmarkProviderImpl) GetBenchmark() (entity.Benchmark, error) {
	p.once.Do(func() {
		p.benchmark, p.err = p.source.GetBenchmark()
		if p.err != nil {
			p.logger.Error("Failed to load benchmark", "error", p.err)
			return
		}
		p.logger.Info("Benchmark loaded", "addresses", len(p.benchmark.Balances), "reference_date", p.benchmark.ReferenceDate)
	})
	return p.benchmark, p.err
}
