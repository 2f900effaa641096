/*
generator.go - Lease terms -> ordered billing schedule

PURPOSE:
  Pure generation of a lease's schedule entries. Due dates are computed in
  Ethiopian months (the billing calendar) and emitted as Gregorian instants.
  Pagume, the short 13th month, is never billed: the month stepping is modular
  over the twelve 30-day months, and a lease that starts inside Pagume rolls
  forward to the next new year without emitting an entry.

ALGORITHM (per billing period):
  1. Convert lease start/end to Ethiopian dates.
  2. Walk forward one interval at a time, keeping the day-of-month fixed.
  3. Each period owes monthlyTotal * intervalMonths, except the last, which
     is prorated to the true remaining span in whole Ethiopian months.
  4. The initial-payment pool is consumed front-to-back, capped per entry at
     the interval amount.

ITERATION FUSE:
  The loop runs at most 500 iterations. Malformed terms (e.g. an end date
  centuries away, or a converter that never advances) fail with ErrLoopBound
  instead of hanging.

SEE ALSO:
  - ethiopic/ethiopic.go: the production Converter
  - reconcile.go: re-derives paid state from recorded payments
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheger/billing-engine/ethiopic"
)

// =============================================================================
// CONVERTER - Injected calendar dependency
// =============================================================================

// Converter is the calendar dependency of the generator. Production code uses
// CalendarConverter; tests may substitute a deterministic double.
type Converter interface {
	ToEthiopic(year int, month time.Month, day int) ethiopic.Date
	ToGregorian(d ethiopic.Date) (year int, month time.Month, day int)
}

// CalendarConverter adapts package ethiopic to the Converter interface.
type CalendarConverter struct{}

func (CalendarConverter) ToEthiopic(year int, month time.Month, day int) ethiopic.Date {
	return ethiopic.ToEthiopic(year, month, day)
}

func (CalendarConverter) ToGregorian(d ethiopic.Date) (int, time.Month, int) {
	return ethiopic.ToGregorian(d)
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate produces the lease's billing obligations in ascending due-date
// order. It is a pure function: no I/O, no clock, no ids assigned.
func Generate(lease *Lease, cal Converter) ([]Entry, error) {
	if lease.StartDate == nil || lease.EndDate == nil {
		return nil, ErrMissingDate
	}
	if lease.IntervalMonths < 1 {
		return nil, ErrInvalidInterval
	}

	monthlyTotal := lease.MonthlyTotal()
	intervalAmount := monthlyTotal.Mul(decimal.NewFromInt(int64(lease.IntervalMonths)))

	pool := lease.InitialPayment
	if pool.IsNegative() {
		pool = decimal.Zero
	}

	cur := cal.ToEthiopic(lease.StartDate.Year(), lease.StartDate.Month(), lease.StartDate.Day())
	end := cal.ToEthiopic(lease.EndDate.Year(), lease.EndDate.Month(), lease.EndDate.Day())
	endGreg := dayUTC(lease.EndDate.Year(), lease.EndDate.Month(), lease.EndDate.Day())

	var entries []Entry
	for iter := 0; ; iter++ {
		if iter >= maxGenerationIterations {
			return nil, &LoopBoundError{LeaseID: lease.ID, Iterations: iter}
		}

		dueDate := dayUTC(cal.ToGregorian(cur))
		if dueDate.After(endGreg) {
			break
		}

		// Pagume is a gap, never a billing period: roll to the next new year
		// without emitting.
		if cur.Month == ethiopic.Pagume {
			day := cur.Day
			if day < 1 {
				day = 1
			}
			cur = ethiopic.Date{Year: cur.Year + 1, Month: 1, Day: day}
			continue
		}

		next := addBillingMonths(cur, lease.IntervalMonths)

		paid := decimal.Min(pool, intervalAmount)
		pool = pool.Sub(paid)

		nextGreg := dayUTC(cal.ToGregorian(next))
		if !nextGreg.Before(endGreg) {
			// Last period: prorate to the true remaining span.
			remaining := remainingMonths(cur, end)
			if remaining < 1 {
				remaining = 1
			}
			final := monthlyTotal.Mul(decimal.NewFromInt(int64(remaining)))
			entries = append(entries, newEntry(lease.ID, dueDate, final, paid))
			break
		}

		entries = append(entries, newEntry(lease.ID, dueDate, intervalAmount, paid))
		cur = next
	}

	return entries, nil
}

// addBillingMonths steps an Ethiopian date forward by whole billing months.
// The arithmetic is modular over the twelve 30-day months, so due dates never
// land in Pagume; month 12 plus one steps to month 1 of the next year.
func addBillingMonths(d ethiopic.Date, months int) ethiopic.Date {
	idx := d.Month - 1 + months
	return ethiopic.Date{
		Year:  d.Year + idx/12,
		Month: idx%12 + 1,
		Day:   d.Day,
	}
}

// remainingMonths counts whole Ethiopian months from the current period to
// the lease end. The end day extending past the period's day adds a month;
// an end inside Pagume is excluded from the count.
func remainingMonths(cur, end ethiopic.Date) int {
	months := (end.Year-cur.Year)*13 + (end.Month - cur.Month)
	if end.Day > cur.Day {
		months++
	}
	if end.Month == ethiopic.Pagume {
		months--
	}
	return months
}

func newEntry(leaseID LeaseID, dueDate time.Time, payable, paid decimal.Decimal) Entry {
	e := Entry{
		LeaseID:       leaseID,
		DueDate:       dueDate,
		PayableAmount: payable,
		PaidAmount:    paid,
	}
	if paid.IsPositive() {
		d := dueDate
		e.PaymentDate = &d
	}
	return e
}

func dayUTC(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
