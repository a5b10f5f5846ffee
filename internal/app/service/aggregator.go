package service

import (
	"time"

	"holdings_tracker/internal/domain/entity"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Aggregator turns per-address results into a ranked MarketSnapshot.
// Apart from GeneratedAt its output depends only on its inputs.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an Aggregator stamping snapshots with the wall clock.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Aggregate groups results by the registry's owning group, attaches benchmark balances and
// derives totals, changes and market shares. Registry addresses missing from results are
// counted as exhausted fetches.
func (a *Aggregator) Aggregate(
	results map[string]entity.BalanceResult,
	registry entity.Registry,
	benchmark entity.Benchmark,
) entity.MarketSnapshot {
	groups := make([]entity.GroupAggregate, 0, len(registry.Groups))
	for _, rg := range registry.Groups {
		groups = append(groups, aggregateGroup(rg, results, benchmark))
	}
	return entity.NewMarketSnapshot(groups, a.now())
}

func aggregateGroup(rg entity.RegistryGroup, results map[string]entity.BalanceResult, benchmark entity.Benchmark) entity.GroupAggregate {
	g := entity.GroupAggregate{
		Name:         rg.Name,
		TotalBalance: decimal.Zero,
		WalletCount:  len(rg.Wallets),
		Members:      make([]entity.GroupMember, 0, len(rg.Wallets)),
	}

	historical := decimal.Zero
	covered := false
	for _, w := range rg.Wallets {
		r, ok := results[w.Address]
		if !ok {
			r = entity.NewExhaustedResult(w.Address, entity.ErrorNone, 0, time.Time{})
		}
		if r.Failed() {
			g.ErrorCount++
		}
		g.TotalBalance = g.TotalBalance.Add(r.Balance)

		if v, ok := benchmark.Lookup(w.Address); ok {
			r = r.WithHistorical(v)
			historical = historical.Add(v)
			covered = true
		}
		g.Members = append(g.Members, entity.GroupMember{Label: w.Label, BalanceResult: r})
	}

	if !covered {
		return g
	}
	g.TotalHistorical = &historical
	if historical.IsPositive() {
		change := g.TotalBalance.Sub(historical)
		percent := change.Div(historical).Mul(hundred)
		g.ChangeAbsolute = &change
		g.ChangePercent = &percent
	}
	return g
}
