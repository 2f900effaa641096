/*
engine.go - Regeneration, cutoff truncation, manual override

PURPOSE:
  The stateful face of the engine. Wires the pure generator and reconciler to
  the store, serializes concurrent work on the same lease, and implements the
  partial-failure policy for bulk regeneration.

OPERATIONS:
  Regenerate:         rebuild one lease's schedule from its terms
  RegenerateAll:      rebuild every active lease, sequentially, collecting
                      per-lease failures instead of aborting the batch
  ResetAndReconcile:  drop entries due before a cutoff, re-derive the rest
  SetEntryPaid:       manual escape hatch - force one entry fully paid/unpaid

ATOMICITY:
  All writes of a single operation run inside one store transaction. A
  generator or store failure mid-sequence rolls back to the previous
  schedule; a lease is never left half-written.

CONCURRENCY:
  A per-lease mutex serializes Regenerate and ResetAndReconcile on the same
  lease. Two concurrent regenerations would otherwise interleave their
  delete/insert steps. Bulk regeneration is deliberately sequential to bound
  database load.

SEE ALSO:
  - generator.go, reconcile.go: the pure halves
  - store.go: persistence interfaces
*/
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine orchestrates schedule maintenance for leases.
type Engine struct {
	store TxStore
	cal   Converter

	mu         sync.Mutex
	leaseLocks map[LeaseID]*sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates an engine over the given store and calendar converter.
func NewEngine(store TxStore, cal Converter) *Engine {
	return &Engine{
		store:      store,
		cal:        cal,
		leaseLocks: make(map[LeaseID]*sync.Mutex),
		now:        time.Now,
	}
}

// lockLease serializes operations on a single lease.
func (e *Engine) lockLease(id LeaseID) func() {
	e.mu.Lock()
	l, ok := e.leaseLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.leaseLocks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// =============================================================================
// REGENERATION
// =============================================================================

// RegenerateResult is the outcome of a single-lease regeneration.
type RegenerateResult struct {
	Entries []Entry

	// Credit is payment money beyond the total payable (overpayment). It is
	// reported to the caller, never discarded.
	Credit decimal.Decimal
}

// Regenerate deletes the lease's schedule, generates a fresh one from the
// lease terms, persists it, and reconciles it against the lease's full
// payment history. The whole write sequence is one transaction.
func (e *Engine) Regenerate(ctx context.Context, leaseID LeaseID) (*RegenerateResult, error) {
	unlock := e.lockLease(leaseID)
	defer unlock()
	return e.regenerateLocked(ctx, leaseID)
}

func (e *Engine) regenerateLocked(ctx context.Context, leaseID LeaseID) (*RegenerateResult, error) {
	lease, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, fmt.Errorf("load lease %s: %w", leaseID, err)
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	// Generation and reconciliation are pure; run them before touching the
	// store so a bad lease never clears its existing schedule.
	generated, err := Generate(lease, e.cal)
	if err != nil {
		return nil, err
	}

	payments, err := e.store.ListPayments(ctx, leaseID)
	if err != nil {
		return nil, fmt.Errorf("load payments for lease %s: %w", leaseID, err)
	}
	reconciled := Reconcile(generated, payments)

	entries := reconciled.Entries
	for i := range entries {
		entries[i].ID = EntryID(uuid.NewString())
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.DeleteEntries(ctx, leaseID); err != nil {
			return fmt.Errorf("clear schedule for lease %s: %w", leaseID, err)
		}
		if err := s.InsertEntries(ctx, entries); err != nil {
			return fmt.Errorf("persist schedule for lease %s: %w", leaseID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if overflow := reconciled.Overflow(leaseID); overflow != nil {
		log.Printf("reconciliation overflow: %v", overflow)
	}

	return &RegenerateResult{Entries: entries, Credit: reconciled.Surplus}, nil
}

// =============================================================================
// BULK REGENERATION
// =============================================================================

// LeaseFailure records one lease that failed during bulk regeneration.
type LeaseFailure struct {
	LeaseID LeaseID
	Err     error
}

// BulkResult summarizes a bulk regeneration run.
type BulkResult struct {
	Regenerated int
	Failures    []LeaseFailure
}

// RegenerateAll rebuilds the schedule of every active lease, strictly
// sequentially. A lease that fails is logged and recorded; the batch
// continues. This is the only operation that tolerates partial failure.
func (e *Engine) RegenerateAll(ctx context.Context) (*BulkResult, error) {
	ids, err := e.store.ListActiveLeaseIDs(ctx)
	if err != nil {
		// Failed runs still return a usable, empty result.
		return &BulkResult{}, fmt.Errorf("list active leases: %w", err)
	}

	result := &BulkResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := e.Regenerate(ctx, id); err != nil {
			log.Printf("bulk regeneration: lease %s failed: %v", id, err)
			result.Failures = append(result.Failures, LeaseFailure{LeaseID: id, Err: err})
			continue
		}
		result.Regenerated++
	}
	return result, nil
}

// =============================================================================
// CUTOFF TRUNCATION
// =============================================================================

// TruncateResult is the outcome of a cutoff truncation.
type TruncateResult struct {
	RemovedCount int
	Entries      []Entry
	Credit       decimal.Decimal
}

// ResetAndReconcile deletes only the entries due strictly before cutoff,
// then re-derives the paid state of everything that remains from the lease's
// recorded payments. Future-dated entries survive the delete but still get
// their paid state rebuilt.
func (e *Engine) ResetAndReconcile(ctx context.Context, leaseID LeaseID, cutoff time.Time) (*TruncateResult, error) {
	unlock := e.lockLease(leaseID)
	defer unlock()

	lease, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, fmt.Errorf("load lease %s: %w", leaseID, err)
	}
	if lease == nil {
		return nil, ErrLeaseNotFound
	}

	var result TruncateResult
	var reconciled Result
	err = e.store.WithTx(ctx, func(s Store) error {
		removed, err := s.DeleteEntriesBefore(ctx, leaseID, cutoff)
		if err != nil {
			return fmt.Errorf("truncate schedule for lease %s: %w", leaseID, err)
		}
		result.RemovedCount = removed

		remaining, err := s.ListEntries(ctx, leaseID)
		if err != nil {
			return err
		}
		payments, err := s.ListPayments(ctx, leaseID)
		if err != nil {
			return err
		}

		reconciled = Reconcile(remaining, payments)
		for _, entry := range reconciled.Entries {
			if err := s.UpdateEntryPayment(ctx, entry.ID, entry.PaidAmount, entry.PaymentDate); err != nil {
				return fmt.Errorf("update entry %s: %w", entry.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if overflow := reconciled.Overflow(leaseID); overflow != nil {
		log.Printf("reconciliation overflow: %v", overflow)
	}

	result.Entries = reconciled.Entries
	result.Credit = reconciled.Surplus
	return &result, nil
}

// =============================================================================
// MANUAL OVERRIDE
// =============================================================================

// SetEntryPaid forces a single entry to fully paid or fully unpaid,
// bypassing reconciliation. This is a deliberate manual correction path, not
// a substitute for the reconciliation contract.
func (e *Engine) SetEntryPaid(ctx context.Context, entryID EntryID, paid bool) (*Entry, error) {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	// The read-modify-write must hold the lease lock, or a concurrent
	// regeneration could replace the schedule between the read and the write.
	// The first read only resolves the lease to lock; re-read under the lock.
	unlock := e.lockLease(entry.LeaseID)
	defer unlock()

	entry, err = e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	if paid {
		at := e.now().UTC().Truncate(24 * time.Hour)
		entry.PaidAmount = entry.PayableAmount
		entry.PaymentDate = &at
	} else {
		entry.PaidAmount = decimal.Zero
		entry.PaymentDate = nil
	}

	if err := e.store.UpdateEntryPayment(ctx, entryID, entry.PaidAmount, entry.PaymentDate); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", entryID, err)
	}
	return entry, nil
}
