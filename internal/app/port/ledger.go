package port

import (
	"context"

	"holdings_tracker/internal/domain/entity"
)

// LedgerClient queries a single ledger endpoint.
type LedgerClient interface {
	// AccountBalance asks the endpoint for the validated balance of address.
	// An unfunded account is reported as Found=false with a nil error.
	// Failures are returned as *entity.LookupError.
	AccountBalance(ctx context.Context, address string) (entity.AccountBalance, error)

	// Endpoint returns the endpoint this client talks to.
	Endpoint() entity.LedgerEndpoint
}

// LedgerClientProvider hands out one client per configured endpoint, in fallback order.
type LedgerClientProvider interface {
	Clients() []LedgerClient
}

// BalanceFetcher resolves one address to a BalanceResult. It never fails: every network or
// parse problem ends up in the result's Error field.
type BalanceFetcher interface {
	Fetch(ctx context.Context, address string) entity.BalanceResult
}

// BalanceCache keeps recent balance results keyed by address.
type BalanceCache interface {
	Get(ctx context.Context, address string) (entity.BalanceResult, bool)
	Set(ctx context.Context, result entity.BalanceResult)
	Flush(ctx context.Context) error
}
