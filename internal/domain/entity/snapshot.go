package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GroupMember is a wallet's fetch result together with its registry label.
type GroupMember struct {
	Label string `json:"label"`
	BalanceResult
}

// GroupAggregate is the per-exchange rollup of one refresh cycle.
type GroupAggregate struct {
	Name            string           `json:"name"`
	Rank            int              `json:"rank"`
	TotalBalance    decimal.Decimal  `json:"totalBalance"`
	TotalHistorical *decimal.Decimal `json:"totalHistorical,omitempty"`
	ChangeAbsolute  *decimal.Decimal `json:"changeAbsolute,omitempty"`
	ChangePercent   *decimal.Decimal `json:"changePercent,omitempty"`
	MarketShare     decimal.Decimal  `json:"marketShare"`
	WalletCount     int              `json:"walletCount"`
	ErrorCount      int              `json:"errorCount"`
	Members         []GroupMember    `json:"members"`
}

// HasHistorical reports whether any member of the group is covered by the benchmark.
func (g GroupAggregate) HasHistorical() bool {
	return g.TotalHistorical != nil
}

// RankedMembers returns the members ordered by balance, largest first.
// Members with equal balances keep their registry order.
func (g GroupAggregate) RankedMembers() []GroupMember {
	members := make([]GroupMember, len(g.Members))
	copy(members, g.Members)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Balance.GreaterThan(members[j].Balance)
	})
	return members
}

// MarketSnapshot is the ranked set of group aggregates handed to the presentation layer.
type MarketSnapshot struct {
	Groups       []GroupAggregate `json:"groups"`
	TotalBalance decimal.Decimal  `json:"totalBalance"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}

// NewMarketSnapshot ranks groups and derives their market shares.
// The input slice is not modified.
func NewMarketSnapshot(groups []GroupAggregate, generatedAt time.Time) MarketSnapshot {
	ranked := make([]GroupAggregate, len(groups))
	copy(ranked, groups)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].TotalBalance.Cmp(ranked[j].TotalBalance); c != 0 {
			return c > 0
		}
		return ranked[i].Name < ranked[j].Name
	})

	total := decimal.Zero
	for _, g := range ranked {
		total = total.Add(g.TotalBalance)
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].MarketShare = MarketShare(ranked[i].TotalBalance, total)
	}
	return MarketSnapshot{Groups: ranked, TotalBalance: total, GeneratedAt: generatedAt}
}

// MarketShare returns part as a percentage of total, or zero when total is zero.
func MarketShare(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred)
}

// Select keeps only the named groups and recomputes shares over that subset.
// An empty selection keeps every group; unknown names are ignored.
func (s MarketSnapshot) Select(names []string) MarketSnapshot {
	if len(names) == 0 {
		return NewMarketSnapshot(s.Groups, s.GeneratedAt)
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	subset := make([]GroupAggregate, 0, len(names))
	for _, g := range s.Groups {
		if _, ok := wanted[g.Name]; ok {
			subset = append(subset, g)
		}
	}
	return NewMarketSnapshot(subset, s.GeneratedAt)
}

// Group returns the aggregate for name.
func (s MarketSnapshot) Group(name string) (GroupAggregate, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupAggregate{}, false
}

// Concentration is the combined market share of the n largest groups.
func (s MarketSnapshot) Concentration(n int) decimal.Decimal {
	share := decimal.Zero
	for i := 0; i < n && i < len(s.Groups); i++ {
		share = share.Add(s.Groups[i].MarketShare)
	}
	return share
}

// CumulativeShares returns the running total of market share in rank order.
func (s MarketSnapshot) CumulativeShares() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Groups))
	running := decimal.Zero
	for i, g := range s.Groups {
		running = running.Add(g.MarketShare)
		out[i] = running
	}
	return out
}

// ErrorCount sums failed fetches across all groups.
func (s MarketSnapshot) ErrorCount() int {
	n := 0
	for _, g := range s.Groups {
		n += g.ErrorCount
	}
	return n
}

// SnapshotRecord is one completed refresh cycle.
type SnapshotRecord struct {
	CycleID       string         `json:"cycleId"`
	Snapshot      MarketSnapshot `json:"snapshot"`
	ReferenceDate string         `json:"referenceDate,omitempty"`
	Addresses     int            `json:"addresses"`
	Failed        int            `json:"failed"`
	Duration      time.Duration  `json:"durationNanos"`
}

// RefreshProgress reports how far the running refresh cycle has got.
type RefreshProgress struct {
	Running bool `json:"running"`
	Done    int  `json:"done"`
	Total   int  `json:"total"`
}

// Fraction returns done/total, or 0 before the first fetch is scheduled.
func (p RefreshProgress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}
