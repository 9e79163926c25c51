package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBudgetExhausted signals a tier cap or daily quota hit. Callers fall
	// back to a cheaper tier instead of failing the segment.
	ErrBudgetExhausted = errors.New("budget exhausted")
	// ErrStoreUnavailable signals a shared store outage; components degrade to
	// local best-effort state when they see it.
	ErrStoreUnavailable = errors.New("store unavailable")
)
