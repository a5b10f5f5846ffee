package port

import (
	"context"

	"holdings_tracker/internal/domain/entity"
)

// ProgressFunc receives the number of completed fetches after each one resolves.
type ProgressFunc func(done, total int)

// SnapshotService builds and serves market snapshots.
type SnapshotService interface {
	// Refresh runs a full fetch and aggregation cycle.
	Refresh(ctx context.Context) (*entity.SnapshotRecord, error)

	// Latest returns the most recent cycle. It waits only when there is none yet;
	// a stale one is returned while a new cycle runs in the background.
	Latest(ctx context.Context) (*entity.SnapshotRecord, error)

	// Current returns the last completed cycle without refreshing, or nil before the first one.
	Current() *entity.SnapshotRecord

	// Invalidate drops cached balances so the next cycle queries the ledger again.
	Invalidate(ctx context.Context) error

	// Progress reports the state of the running cycle.
	Progress() entity.RefreshProgress

	// GroupNames lists the groups known to the registry.
	GroupNames() ([]string, error)
}
