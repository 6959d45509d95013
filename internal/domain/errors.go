package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Input errors
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateReversal = fmt.Errorf("%w: transaction already reversed", ErrValidation)

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Storage errors
	ErrPersistence   = errors.New("persistence failure")
	ErrStateConflict = errors.New("actor state version conflict")

	// Distribution invariant breach. Fatal: never partially applied.
	ErrInvariantViolation = errors.New("distribution invariant violated")
)

// InsufficientBalanceError carries the figures of a rejected debit.
type InsufficientBalanceError struct {
	ActorID   string
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: actor %s has %d, requested %d", e.ActorID, e.Balance, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientBalance.
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted subject.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
