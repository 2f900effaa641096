/*
Package schedule is the lease payment-schedule engine.

PURPOSE:
  Turns a lease's financial terms and date range into a deterministic sequence
  of billing obligations (schedule entries), using the Ethiopian calendar for
  month arithmetic, and keeps that sequence consistent as leases are edited,
  regenerated, or truncated, while reconciling it against independently
  recorded payments.

KEY CONCEPTS IN THIS FILE (types.go):
  - Lease:    financial/time terms of a tenancy (interval, sub-amounts, dates)
  - Entry:    one billing obligation (due date, payable, paid, payment date)
  - Payment:  an independently recorded receipt against a lease
  - SubAmounts: named monthly components (base, utility, ...) summed for totals

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money, never floats
  2. Determinism: generation and reconciliation are pure functions
  3. Computed linkage: payments are never linked to entries by foreign key;
     the relationship is re-derived by reconciliation

SEE ALSO:
  - generator.go: lease terms -> ordered entries
  - reconcile.go: payments -> per-entry paid state
  - engine.go:    regeneration, truncation, manual override
  - store.go:     persistence interfaces
*/
package schedule

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LeaseID string
type EntryID string

// =============================================================================
// SUB-AMOUNTS - Named monthly components, summed generically
// =============================================================================

// SubAmounts maps a named monthly component (e.g. "base", "utility") to its
// amount. The schema is open: any extra keys participate in the total.
type SubAmounts map[string]decimal.Decimal

// Total sums every component.
func (s SubAmounts) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range s {
		total = total.Add(v)
	}
	return total
}

// Components returns the component names in stable (sorted) order.
func (s SubAmounts) Components() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// LEASE - Financial and time terms of a tenancy
// =============================================================================

// Lease carries the terms the engine needs. Tenant, room, and bank linkage
// live outside this subsystem.
type Lease struct {
	ID        LeaseID
	StartDate *time.Time // Gregorian; nil means not set
	EndDate   *time.Time

	// IntervalMonths is the billing cadence in Ethiopian months. Must be >= 1.
	IntervalMonths int

	// MonthlyAmounts are the named per-month components.
	MonthlyAmounts SubAmounts

	// InitialPayment is a pre-paid credit consumed against the earliest
	// entries regardless of real payment chronology. Zero when absent.
	InitialPayment decimal.Decimal

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyTotal is the sum of all monthly components.
func (l *Lease) MonthlyTotal() decimal.Decimal {
	return l.MonthlyAmounts.Total()
}

// IntervalAmount is the payable amount of one full billing interval.
func (l *Lease) IntervalAmount() decimal.Decimal {
	return l.MonthlyTotal().Mul(decimal.NewFromInt(int64(l.IntervalMonths)))
}

// =============================================================================
// ENTRY - One billing obligation
// =============================================================================

// Entry is a single obligation on a lease's schedule. Entries are created in
// bulk by generation and deleted in bulk by regeneration/truncation; only
// PaidAmount and PaymentDate mutate after creation (reconciliation or manual
// override).
type Entry struct {
	ID      EntryID
	LeaseID LeaseID

	DueDate       time.Time // Gregorian, UTC midnight
	PayableAmount decimal.Decimal
	PaidAmount    decimal.Decimal
	PaymentDate   *time.Time // set only when PaidAmount > 0
}

// IsPaid reports whether the entry is fully covered.
func (e *Entry) IsPaid() bool {
	return e.PaidAmount.GreaterThanOrEqual(e.PayableAmount)
}

// Outstanding is the unpaid remainder, never negative.
func (e *Entry) Outstanding() decimal.Decimal {
	out := e.PayableAmount.Sub(e.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// sortEntries orders entries by due date ascending. The ordering is
// load-bearing for both generation and reconciliation.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DueDate.Before(entries[j].DueDate)
	})
}

// =============================================================================
// PAYMENT - Independently recorded receipt (read-only here)
// =============================================================================

// Payment is a recorded receipt of money against a lease. It carries no
// foreign key to an Entry; reconciliation computes the relationship.
type Payment struct {
	ID          string
	LeaseID     LeaseID
	PaidAmount  decimal.Decimal
	PaymentDate time.Time
	Verified    bool
	BankRef     string
}

func sortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].PaymentDate.Before(payments[j].PaymentDate)
	})
}

// TotalPaid sums the recorded amounts.
func TotalPaid(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.PaidAmount)
	}
	return total
}
