package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies the outcome of a balance lookup.
type ErrorKind string

const (
	// ErrorNone marks a successful lookup.
	ErrorNone ErrorKind = ""
	// ErrorNetworkTimeout means the endpoint did not answer within its bound.
	ErrorNetworkTimeout ErrorKind = "network_timeout"
	// ErrorMalformedResponse means the endpoint answered with something we could not use.
	ErrorMalformedResponse ErrorKind = "malformed_response"
	// ErrorAccountNotFound is an authoritative "no such account" answer. Not a failure.
	ErrorAccountNotFound ErrorKind = "account_not_found"
	// ErrorFetchExhausted means every endpoint and retry round failed for the address.
	ErrorFetchExhausted ErrorKind = "fetch_exhausted"
)

// IsError reports whether the kind should be counted against a group total.
func (k ErrorKind) IsError() bool {
	return k == ErrorFetchExhausted
}

// String returns "none" for ErrorNone so that logs and metric labels are never empty.
func (k ErrorKind) String() string {
	if k == ErrorNone {
		return "none"
	}
	return string(k)
}

// MinorUnitsPerUnit is the scale factor between drops and XRP.
const MinorUnitsPerUnit = 1_000_000

// AccountBalance is what a single ledger endpoint reported for an account.
type AccountBalance struct {
	Address     string          `json:"address"`
	Drops       decimal.Decimal `json:"drops"`
	Found       bool            `json:"found"`
	LedgerIndex uint32          `json:"ledgerIndex,omitempty"`
}

// BalanceResult is the outcome of one fetch for one address. Values are never patched in place:
// a retry or an enrichment produces a new value.
type BalanceResult struct {
	Address     string           `json:"address"`
	Balance     decimal.Decimal  `json:"balance"`
	Historical  *decimal.Decimal `json:"historical,omitempty"`
	Error       ErrorKind        `json:"error,omitempty"`
	Found       bool             `json:"found"`
	LastFailure ErrorKind        `json:"lastFailure,omitempty"` // last per-endpoint failure seen before exhaustion
	Attempts    int              `json:"attempts"`
	FetchedAt   time.Time        `json:"fetchedAt"`
}

// NewFoundResult builds a result for an account that exists on the ledger.
func NewFoundResult(address string, drops decimal.Decimal, attempts int, at time.Time) BalanceResult {
	return BalanceResult{
		Address:   address,
		Balance:   drops.Shift(-6),
		Found:     true,
		Attempts:  attempts,
		FetchedAt: at,
	}
}

// NewNotFoundResult builds the zero-balance result for an unfunded account.
func NewNotFoundResult(address string, attempts int, at time.Time) BalanceResult {
	return BalanceResult{
		Address:   address,
		Balance:   decimal.Zero,
		Attempts:  attempts,
		FetchedAt: at,
	}
}

// NewExhaustedResult builds the result for an address nobody could answer for.
func NewExhaustedResult(address string, lastFailure ErrorKind, attempts int, at time.Time) BalanceResult {
	return BalanceResult{
		Address:     address,
		Balance:     decimal.Zero,
		Error:       ErrorFetchExhausted,
		LastFailure: lastFailure,
		Attempts:    attempts,
		FetchedAt:   at,
	}
}

// Failed reports whether the result contributes to a group's error count.
func (r BalanceResult) Failed() bool {
	return r.Error.IsError()
}

// WithHistorical returns a copy of r carrying the benchmark balance.
func (r BalanceResult) WithHistorical(v decimal.Decimal) BalanceResult {
	r.Historical = &v
	return r
}
