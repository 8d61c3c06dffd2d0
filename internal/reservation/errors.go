package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrSchedulingConflict = errors.New("scheduling conflict: slot no longer available")
	ErrNoTableAvailable   = errors.New("no table available")
	ErrPolicyViolation    = errors.New("policy violation")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	// ErrTransactionFailure is transient and safe to retry.
	ErrTransactionFailure = errors.New("transaction failure")
)

var (
	ErrTooLateToCancel = fmt.Errorf("%w: too late to cancel", ErrPolicyViolation)
	ErrPastReservation = fmt.Errorf("%w: reservation time is in the past", ErrPolicyViolation)
)

// IsRetryable reports whether err may succeed on a second attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailure)
}
