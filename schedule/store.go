/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines what the engine needs from the database without binding to an
  implementation. Entries are bulk-created and bulk-deleted; only their paid
  state mutates in place. Payments are read-only from this subsystem:
  recording them belongs to the payment workflow, not the engine.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite

SEE ALSO:
  - engine.go: the only consumer of these interfaces
*/
package schedule

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LeaseStore looks up lease terms.
// Get returns (nil, nil) when the lease does not exist.
type LeaseStore interface {
	GetLease(ctx context.Context, id LeaseID) (*Lease, error)

	// ListActiveLeaseIDs returns ids only; bulk regeneration loads each lease
	// one at a time to bound memory.
	ListActiveLeaseIDs(ctx context.Context) ([]LeaseID, error)
}

// EntryStore persists schedule entries.
type EntryStore interface {
	// InsertEntries bulk-inserts generated entries.
	InsertEntries(ctx context.Context, entries []Entry) error

	// DeleteEntries removes every entry of the lease. Returns the count removed.
	DeleteEntries(ctx context.Context, leaseID LeaseID) (int, error)

	// DeleteEntriesBefore removes entries with DueDate strictly before cutoff.
	DeleteEntriesBefore(ctx context.Context, leaseID LeaseID, cutoff time.Time) (int, error)

	// ListEntries returns the lease's entries ordered by due date ascending.
	ListEntries(ctx context.Context, leaseID LeaseID) ([]Entry, error)

	// GetEntry returns (nil, nil) when the entry does not exist.
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)

	// UpdateEntryPayment sets the only mutable fields of an entry.
	UpdateEntryPayment(ctx context.Context, id EntryID, paid decimal.Decimal, paymentDate *time.Time) error
}

// PaymentFeed reads recorded payments. The engine never writes payments.
type PaymentFeed interface {
	ListPayments(ctx context.Context, leaseID LeaseID) ([]Payment, error)
}

// Store bundles everything the engine touches.
type Store interface {
	LeaseStore
	EntryStore
	PaymentFeed
}

// TxStore wraps Store with transaction support. Regeneration and truncation
// run their delete/insert/update sequences inside WithTx so a failure at any
// step leaves the previous schedule intact.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn returning an error rolls
	// everything back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
