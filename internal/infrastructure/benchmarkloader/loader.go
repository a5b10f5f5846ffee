package benchmarkloader

import (
	"errors"
	"fmt"
	"io/fs"

	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/pkg/utils"

	"github.com/shopspring/decimal"
)

const defaultBenchmarkFilePath = "data/benchmark.json"

// BenchmarkFileLoader reads the historical benchmark from a JSON file:
//
//	{"referenceDate": "2024-11-01", "balances": {"rEb8...": "1234.5"}}
//
// A missing file means "no benchmark" and is not an error.
type BenchmarkFileLoader struct {
	filePath   string
	loggerInfo func(msg string, args ...any)
	loggerWarn func(msg string, args ...any)
}

// NewBenchmarkFileLoader creates a new BenchmarkFileLoader. An empty path uses data/benchmark.json.
func NewBenchmarkFileLoader(filePath string, loggerInfo, loggerWarn func(msg string, args ...any)) *BenchmarkFileLoader {
	if filePath == "" {
		filePath = defaultBenchmarkFilePath
	}
	return &BenchmarkFileLoader{filePath: filePath, loggerInfo: loggerInfo, loggerWarn: loggerWarn}
}

// GetBenchmark loads and checks the benchmark file.
func (l *BenchmarkFileLoader) GetBenchmark() (entity.Benchmark, error) {
	bm, err := utils.LoadJSON[entity.Benchmark](l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if l.loggerWarn != nil {
				l.loggerWarn("Benchmark file not found, historical comparison disabled", "path", l.filePath)
			}
			return entity.Benchmark{Balances: map[string]decimal.Decimal{}}, nil
		}
		return entity.Benchmark{}, fmt.Errorf("failed to load benchmark file %s: %w", l.filePath, err)
	}

	if bm.Balances == nil {
		bm.Balances = map[string]decimal.Decimal{}
	}
	for addr, v := range bm.Balances {
		if v.IsNegative() {
			return entity.Benchmark{}, fmt.Errorf("benchmark balance for %s is negative: %s", addr, v)
		}
	}

	if l.loggerInfo != nil {
		l.loggerInfo("Benchmark loaded successfully from file", "addresses", len(bm.Balances), "reference_date", bm.ReferenceDate, "path", l.filePath)
	}
	return bm, nil
}
