package entity

import "github.com/shopspring/decimal"

// Benchmark is a fixed historical balance snapshot used as a comparison baseline.
// Balances are in display units (XRP), keyed by address.
type Benchmark struct {
	ReferenceDate string                     `json:"referenceDate"`
	Balances      map[string]decimal.Decimal `json:"balances"`
}

// Lookup returns the benchmark balance for address, if there is one.
func (b Benchmark) Lookup(address string) (decimal.Decimal, bool) {
	if b.Balances == nil {
		return decimal.Zero, false
	}
	v, ok := b.Balances[address]
	return v, ok
}

// Empty reports whether the benchmark covers no address at all.
func (b Benchmark) Empty() bool {
	return len(b.Balances) == 0
}
