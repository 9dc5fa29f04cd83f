/*
errors.go - Centralized error taxonomy for the marketplace core

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers match with errors.Is(); structured variants carry context
  and unwrap to the sentinels.

ERROR CATEGORIES:
  1. Matching preconditions - teacher/student eligibility failures
  2. Payment lifecycle - authorization and state-machine violations
  3. Store errors - missing records, transaction contention

USAGE:
  if errors.Is(err, market.ErrInsufficientSlots) {
      // teacher's slot pool was exhausted
  }

SEE ALSO:
  - matching/engine.go: Returns the matching precondition errors in order
  - billing/service.go: Returns the payment lifecycle errors
*/
package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTeacherNotFound is returned when a referenced teacher doesn't exist.
	ErrTeacherNotFound = errors.New("teacher not found")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrMatchNotFound is returned when a referenced match doesn't exist.
	ErrMatchNotFound = errors.New("match not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrRateNotSet is returned when matching against a teacher who has not
	// set a positive hourly rate.
	ErrRateNotSet = errors.New("teacher has not set an hourly rate")

	// ErrPayoutSetupIncomplete is returned when a direct-payment teacher is
	// missing bank details.
	ErrPayoutSetupIncomplete = errors.New("teacher payout setup incomplete")

	// ErrInsufficientSlots is returned when a slot debit would drive the
	// teacher's available count below zero.
	ErrInsufficientSlots = errors.New("no available slots")

	// ErrAlreadyMatched is returned when a student who already has a match
	// tries to match again.
	ErrAlreadyMatched = errors.New("student already matched")

	// ErrNoActiveMatch is returned when submitting a payment for a pair with
	// no match between them.
	ErrNoActiveMatch = errors.New("no active match for pair")

	// ErrNotAuthorized is returned when the acting user is not allowed to
	// perform the operation (e.g. confirming another teacher's payment).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAlreadyConfirmed is returned on duplicate payment confirmation.
	// Confirmed is terminal; the first confirmation wins.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")

	// ErrInvalidAmount is returned for negative or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrConflict is returned when a conditional store update loses a race.
	// Callers retry a bounded number of times before re-checking preconditions.
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientSlotsError reports a slot debit against an exhausted pool.
type InsufficientSlotsError struct {
	TeacherID UserID
	Available int
}

func (e *InsufficientSlotsError) Error() string {
	return fmt.Sprintf("teacher %s has no available slots (available: %d)", e.TeacherID, e.Available)
}

func (e *InsufficientSlotsError) Unwrap() error { return ErrInsufficientSlots }

// AlreadyMatchedError reports which teacher the student is already paired with.
type AlreadyMatchedError struct {
	StudentID UserID
	TeacherID UserID
}

func (e *AlreadyMatchedError) Error() string {
	return fmt.Sprintf("student %s is already matched with teacher %s", e.StudentID, e.TeacherID)
}

func (e *AlreadyMatchedError) Unwrap() error { return ErrAlreadyMatched }

// InvalidAmountError reports a rejected payment amount.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount: %s", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTeacherNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsClientError returns true if the error is a per-operation business-rule
// failure rather than an infrastructure problem.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRateNotSet) ||
		errors.Is(err, ErrPayoutSetupIncomplete) ||
		errors.Is(err, ErrInsufficientSlots) ||
		errors.Is(err, ErrAlreadyMatched) ||
		errors.Is(err, ErrNoActiveMatch) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrInvalidAmount)
}
