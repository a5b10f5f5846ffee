package service

import (
	"context"
	"math"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"
	"holdings_tracker/internal/infrastructure/configloader"
	"holdings_tracker/internal/infrastructure/metrics"
)

// RetryPolicy bounds how often the endpoint list is walked for one address.
// Every round makes at most one attempt per endpoint. Budget, when positive, caps the
// wall time spent on one address across all rounds and backoffs.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Budget         time.Duration
}

// RetryPolicyFromConfig builds the policy from the retry section of the config.
func RetryPolicyFromConfig(cfg *configloader.Config) RetryPolicy {
	return RetryPolicy{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMillis) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMillis) * time.Millisecond,
		Multiplier:     cfg.Retry.Multiplier,
		Budget:         cfg.FetchBudget(),
	}
}

// Backoff returns the wait after failed round (0-based): initial * multiplier^round, capped.
func (p RetryPolicy) Backoff(round int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(round))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p RetryPolicy) rounds() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

type fetchState int

const (
	stateTryEndpoint fetchState = iota
	stateAdvance
	stateRetryWithBackoff
	stateSuccess
	stateNotFound
	stateExhausted
)

func (s fetchState) String() string {
	switch s {
	case stateTryEndpoint:
		return "try_endpoint"
	case stateAdvance:
		return "advance"
	case stateRetryWithBackoff:
		return "retry_with_backoff"
	case stateSuccess:
		return "success"
	case stateNotFound:
		return "not_found"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// fetchAttempt is the mutable state of one Fetch call. It never escapes the call.
type fetchAttempt struct {
	address     string
	endpoint    int
	round       int
	attempts    int
	lastFailure entity.ErrorKind
	balance     entity.AccountBalance
}

// LedgerBalanceFetcher implements port.BalanceFetcher by walking the endpoint list.
type LedgerBalanceFetcher struct {
	clients []port.LedgerClient
	policy  RetryPolicy
	logger  port.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewLedgerBalanceFetcher creates a fetcher over the provider's clients.
func NewLedgerBalanceFetcher(
	clients port.LedgerClientProvider,
	policy RetryPolicy,
	logger port.Logger,
	m *metrics.Metrics,
) *LedgerBalanceFetcher {
	return &LedgerBalanceFetcher{
		clients: clients.Clients(),
		policy:  policy,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Fetch resolves address to a BalanceResult. It never returns an error: an address nobody
// could answer for comes back as a zero balance flagged ErrorFetchExhausted.
func (f *LedgerBalanceFetcher) Fetch(ctx context.Context, address string) entity.BalanceResult {
	if f.policy.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.policy.Budget)
		defer cancel()
	}

	a := &fetchAttempt{address: address}
	state := stateTryEndpoint
	if len(f.clients) == 0 {
		state = stateExhausted
	}

	for {
		switch state {
		case stateTryEndpoint:
			state = f.tryEndpoint(ctx, a)
		case stateAdvance:
			state = f.advance(a)
		case stateRetryWithBackoff:
			state = f.retryWithBackoff(ctx, a)
		case stateSuccess:
			f.metrics.ObserveFetch("found", a.attempts)
			return entity.NewFoundResult(address, a.balance.Drops, a.attempts, f.now())
		case stateNotFound:
			f.metrics.ObserveFetch("not_found", a.attempts)
			return entity.NewNotFoundResult(address, a.attempts, f.now())
		default:
			f.logger.Warn("Balance fetch exhausted", "address", address, "attempts", a.attempts,
				"rounds", a.round+1, "last_failure", a.lastFailure.String())
			f.metrics.ObserveFetch("exhausted", a.attempts)
			return entity.NewExhaustedResult(address, a.lastFailure, a.attempts, f.now())
		}
	}
}

// tryEndpoint makes the single attempt allowed for the current endpoint in this round.
func (f *LedgerBalanceFetcher) tryEndpoint(ctx context.Context, a *fetchAttempt) fetchState {
	if ctx.Err() != nil {
		if a.lastFailure == entity.ErrorNone {
			a.lastFailure = entity.ErrorNetworkTimeout
		}
		return stateExhausted
	}

	client := f.clients[a.endpoint]
	a.attempts++
	balance, err := client.AccountBalance(ctx, a.address)
	if err != nil {
		a.lastFailure = entity.KindOf(err)
		f.logger.Debug("Endpoint attempt failed", "address", a.address, "endpoint", client.Endpoint().Label(),
			"round", a.round, "kind", a.lastFailure.String(), "error", err)
		return stateAdvance
	}

	a.balance = balance
	if !balance.Found {
		return stateNotFound
	}
	return stateSuccess
}

// advance moves to the next endpoint, or ends the round.
func (f *LedgerBalanceFetcher) advance(a *fetchAttempt) fetchState {
	if a.endpoint+1 < len(f.clients) {
		a.endpoint++
		return stateTryEndpoint
	}
	if a.round+1 < f.policy.rounds() {
		return stateRetryWithBackoff
	}
	return stateExhausted
}

// retryWithBackoff waits out the backoff for the finished round and restarts at the first endpoint.
func (f *LedgerBalanceFetcher) retryWithBackoff(ctx context.Context, a *fetchAttempt) fetchState {
	wait := f.policy.Backoff(a.round)
	f.logger.Debug("All endpoints failed, backing off", "address", a.address, "round", a.round, "backoff", wait.String())
	if err := f.sleep(ctx, wait); err != nil {
		return stateExhausted
	}
	a.round++
	a.endpoint = 0
	return stateTryEndpoint
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
