package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidState indicates an operation that is not legal in the
// resource's current lifecycle state.
type ErrInvalidState struct {
	Resource  string
	ID        string
	State     string
	Operation string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s %s %s: %s", e.Operation, e.Resource, e.ID, e.State)
}

// ErrRateLimited indicates the upstream price source was queried for this
// symbol too recently.
type ErrRateLimited struct {
	Symbol     string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("price for %s was fetched recently, try again in %s", e.Symbol, e.RetryAfter.Round(time.Second))
}

// ErrInvalidPrice indicates the upstream returned an unusable price.
type ErrInvalidPrice struct {
	Symbol string
	Price  float64
}

func (e *ErrInvalidPrice) Error() string {
	return fmt.Sprintf("invalid price for %s: %v", e.Symbol, e.Price)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// Error kinds returned by Kind.
const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindInvalidState = "invalid_state"
	KindRateLimited  = "rate_limited"
	KindInvalidPrice = "invalid_price"
	KindUnavailable  = "unavailable"
	KindExternal     = "external"
	KindUnknown      = "unknown"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var (
		validation   *ErrValidation
		notFound     *ErrNotFound
		invalidState *ErrInvalidState
		rateLimited  *ErrRateLimited
		invalidPrice *ErrInvalidPrice
		circuitOpen  *ErrCircuitOpen
		external     *ErrExternalService
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &invalidState):
		return KindInvalidState
	case errors.As(err, &rateLimited):
		return KindRateLimited
	case errors.As(err, &invalidPrice):
		return KindInvalidPrice
	case errors.As(err, &circuitOpen):
		return KindUnavailable
	case errors.As(err, &external):
		return KindExternal
	default:
		return KindUnknown
	}
}
