/*
reconcile.go - Re-derive per-entry paid state from recorded payments

PURPOSE:
  Payments are recorded independently of schedule entries and carry no link
  to them. Whenever the schedule is rebuilt (regeneration) or partially
  deleted (cutoff truncation), this file redistributes the lease's recorded
  payment total across the current entries.

ALLOCATION POLICY (earliest-due-first, greedy, capped):
  1. Entries ordered by due date ascending, payments by payment date ascending.
  2. A single pool holds the sum of all recorded payment amounts.
  3. Each entry in order takes min(pool, payable); the pool shrinks.
  4. An entry's payment date is the date of the most recent payment that
     contributed to it.
  5. Pool left after the last entry is surfaced as Surplus - lease-level
     credit, never silently dropped.

IDEMPOTENCE:
  Reconcile sorts its own copies of the inputs and keeps no state between
  calls; the same (entries, payments) pair always produces identical output.

SEE ALSO:
  - engine.go: invokes reconciliation after regeneration and truncation
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result is the outcome of reconciling a lease's schedule.
type Result struct {
	// Entries are the reconciled entries, due date ascending, with PaidAmount
	// and PaymentDate re-derived.
	Entries []Entry

	// Surplus is recorded payment money that no entry could absorb.
	Surplus decimal.Decimal
}

// Overflow returns a reportable error when payments exceeded the total
// payable, nil otherwise.
func (r Result) Overflow(leaseID LeaseID) *OverflowError {
	if r.Surplus.IsPositive() {
		return &OverflowError{LeaseID: leaseID, Surplus: r.Surplus}
	}
	return nil
}

// Reconcile redistributes the lease's recorded payments across its current
// schedule entries. Pure function: inputs are copied, not mutated.
func Reconcile(entries []Entry, payments []Payment) Result {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sortEntries(ordered)

	receipts := make([]Payment, len(payments))
	copy(receipts, payments)
	sortPayments(receipts)

	pool := TotalPaid(receipts)

	// consumed tracks how much of the pool has been handed out so far; it is
	// the cursor into the payment sequence for date attribution.
	consumed := decimal.Zero

	for i := range ordered {
		paid := decimal.Min(pool, ordered[i].PayableAmount)
		pool = pool.Sub(paid)

		ordered[i].PaidAmount = paid
		if paid.IsPositive() {
			consumed = consumed.Add(paid)
			ordered[i].PaymentDate = contributingDate(receipts, consumed)
		} else {
			ordered[i].PaymentDate = nil
		}
	}

	return Result{Entries: ordered, Surplus: pool}
}

// contributingDate returns the payment date of the receipt covering the last
// unit of the first `consumed` money, i.e. the most recent payment that
// contributed to the entry just filled.
func contributingDate(receipts []Payment, consumed decimal.Decimal) *time.Time {
	running := decimal.Zero
	for _, p := range receipts {
		running = running.Add(p.PaidAmount)
		if running.GreaterThanOrEqual(consumed) {
			d := p.PaymentDate
			return &d
		}
	}
	if len(receipts) == 0 {
		return nil
	}
	d := receipts[len(receipts)-1].PaymentDate
	return &d
}
