package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRegistry is returned when the registry has no groups or no addresses.
	ErrEmptyRegistry = errors.New("registry is empty")
	// ErrDuplicateAddress is returned when an address is attributed to more than one wallet.
	ErrDuplicateAddress = errors.New("duplicate address in registry")
	// ErrDuplicateGroup is returned when a group name appears twice.
	ErrDuplicateGroup = errors.New("duplicate group in registry")
	// ErrInvalidEntry is returned for a registry entry with an empty address or group name.
	ErrInvalidEntry = errors.New("invalid registry entry")
	// ErrUnknownGroup is returned when a caller asks for a group the registry does not have.
	ErrUnknownGroup = errors.New("unknown group")
)

// LookupError describes why a single endpoint could not answer for an address.
type LookupError struct {
	Kind     ErrorKind
	Endpoint string
	Err      error
}

// NewLookupError wraps err with the failure kind and the endpoint that produced it.
func NewLookupError(kind ErrorKind, endpoint string, err error) *LookupError {
	return &LookupError{Kind: kind, Endpoint: endpoint, Err: err}
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind carried by err. Errors that are not LookupErrors are
// classified as malformed responses.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr.Kind
	}
	return ErrorMalformedResponse
}
