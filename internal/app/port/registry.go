package port

import "holdings_tracker/internal/domain/entity"

// RegistryProvider defines the interface for fetching the exchange address registry.
type RegistryProvider interface {
	GetRegistry() (entity.Registry, error)
}

// BenchmarkProvider defines the interface for fetching the historical benchmark.
// A missing benchmark is not an error; it yields an empty entity.Benchmark.
type BenchmarkProvider interface {
	GetBenchmark() (entity.Benchmark, error)
}
