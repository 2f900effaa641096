/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All engine error types in one place. Callers classify failures with
  errors.Is/errors.As; the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Generation errors - bad lease terms (missing dates, bad interval, fuse)
  2. Lookup errors     - lease or entry absent
  3. Reconciliation    - recorded payments exceed the total payable

SEE ALSO:
  - generator.go: returns generation errors
  - engine.go:    returns lookup errors, reports overflow
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingDate is returned when a lease has no start or end date.
	ErrMissingDate = errors.New("lease start or end date missing")

	// ErrInvalidInterval is returned when the billing interval is not a
	// positive number of months.
	ErrInvalidInterval = errors.New("payment interval must be a positive number of months")

	// ErrLoopBound is returned when generation exceeds the iteration fuse.
	// This guards against pathological lease terms; generation must never hang.
	ErrLoopBound = errors.New("schedule generation exceeded iteration bound")

	// ErrLeaseNotFound is returned when the referenced lease doesn't exist.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrEntryNotFound is returned when the referenced schedule entry doesn't exist.
	ErrEntryNotFound = errors.New("schedule entry not found")

	// ErrReconciliationOverflow is returned when recorded payments exceed the
	// total payable across the schedule. The surplus is reported, not dropped.
	ErrReconciliationOverflow = errors.New("recorded payments exceed total payable")
)

// maxGenerationIterations is the defensive fuse for the generation loop.
const maxGenerationIterations = 500

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LoopBoundError reports how far generation got before tripping the fuse.
type LoopBoundError struct {
	LeaseID    LeaseID
	Iterations int
}

func (e *LoopBoundError) Error() string {
	return fmt.Sprintf("lease %s: generation stopped after %d iterations", e.LeaseID, e.Iterations)
}

func (e *LoopBoundError) Unwrap() error { return ErrLoopBound }

// OverflowError reports the unallocatable surplus left after reconciliation.
type OverflowError struct {
	LeaseID LeaseID
	Surplus decimal.Decimal
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("lease %s: %s paid beyond total payable", e.LeaseID, e.Surplus)
}

func (e *OverflowError) Unwrap() error { return ErrReconciliationOverflow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input terms.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingDate) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrLoopBound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeaseNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
