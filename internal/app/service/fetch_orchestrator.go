package service

import (
	"context"
	"sync"
	"time"

	"holdings_tracker/internal/app/port"
	"holdings_tracker/internal/domain/entity"

	"golang.org/x/sync/errgroup"
)

// FetchOrchestrator fans balance fetches out over a bounded pool of goroutines.
type FetchOrchestrator struct {
	fetcher       port.BalanceFetcher
	maxConcurrent int
	logger        port.Logger
}

// NewFetchOrchestrator creates an orchestrator running at most maxConcurrent fetches at once.
func NewFetchOrchestrator(fetcher port.BalanceFetcher, maxConcurrent int, logger port.Logger) *FetchOrchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &FetchOrchestrator{fetcher: fetcher, maxConcurrent: maxConcurrent, logger: logger}
}

// FetchAll fetches every distinct address in entries and returns exactly one result per address.
// Individual failures are carried inside the results; the only error is ctx's, in which case
// no results are returned. progress, if set, is called once per resolved fetch with a strictly
// increasing done count.
func (o *FetchOrchestrator) FetchAll(
	ctx context.Context,
	entries []entity.AddressEntry,
	progress port.ProgressFunc,
) (map[string]entity.BalanceResult, error) {
	addresses := distinctAddresses(entries)
	total := len(addresses)
	start := time.Now()
	o.logger.Info("Fetching balances", "addresses", total, "max_concurrent", o.maxConcurrent)

	// each goroutine owns exactly one slot
	results := make([]entity.BalanceResult, total)

	var progressMu sync.Mutex
	done := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.maxConcurrent)
	for i, addr := range addresses {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			results[i] = o.fetcher.Fetch(egCtx, addr)
			if progress != nil {
				progressMu.Lock()
				done++
				progress(done, total)
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors

	if err := ctx.Err(); err != nil {
		o.logger.Warn("Balance fetch abandoned", "error", err, "addresses", total)
		return nil, err
	}

	out := make(map[string]entity.BalanceResult, total)
	failed := 0
	for i, addr := range addresses {
		out[addr] = results[i]
		if results[i].Failed() {
			failed++
		}
	}
	o.logger.Info("Balances fetched", "addresses", total, "failed", failed, "took", time.Since(start).String())
	return out, nil
}

func distinctAddresses(entries []entity.AddressEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Address]; ok {
			continue
		}
		seen[e.Address] = struct{}{}
		out = append(out, e.Address)
	}
	return out
}
