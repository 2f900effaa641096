/*
Package sqlite is the SQLite-backed implementation of the schedule stores.

PURPOSE:
  Implements schedule.TxStore (leases, schedule entries, payment feed) plus
  the write paths the HTTP layer needs to make the engine drivable: lease
  intake and payment recording. The same patterns apply to PostgreSQL with
  minor dialect changes.

KEY TABLES:
  leases:           lease terms; monthly sub-amounts as a JSON object
  schedule_entries: generated billing obligations, bulk-written
  payments:         independently recorded receipts, append-only here

MONEY:
  Decimal amounts are stored as TEXT and parsed with shopspring/decimal.
  No floats touch the database.

DATES:
  All instants are UTC RFC3339 strings, so lexicographic comparison in SQL
  matches chronological comparison (used by the cutoff delete).

CONCURRENCY:
  sync.RWMutex guards the connection; WithTx holds the write lock for the
  whole transaction so reads inside it see its own writes.

WAL MODE:
  Opened with WAL and foreign keys on, matching production settings.

SEE ALSO:
  - schedule/store.go: interface definitions
  - schedule/engine.go: the consumer
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/sheger/billing-engine/schedule"
)

// Store implements schedule.TxStore over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		start_date TEXT,
		end_date TEXT,
		interval_months INTEGER NOT NULL,
		monthly_amounts_json TEXT NOT NULL,
		initial_payment TEXT NOT NULL DEFAULT '0',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leases_active ON leases(active);

	CREATE TABLE IF NOT EXISTS schedule_entries (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL REFERENCES leases(id),
		due_date TEXT NOT NULL,
		payable_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		payment_date TEXT
	);

	-- Hot path: schedule listing and cutoff deletes, ordered by due date.
	CREATE INDEX IF NOT EXISTS idx_entries_lease_due
		ON schedule_entries(lease_id, due_date ASC);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL REFERENCES leases(id),
		paid_amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		bank_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_lease_date
		ON payments(lease_id, payment_date ASC);
	`

	_, err := s.db.Exec(schemaSQL)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so every query helper works inside and
// outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEASE STORE (schedule.LeaseStore interface)
// =============================================================================

// SaveLease inserts or updates a lease.
func (s *Store) SaveLease(ctx context.Context, lease *schedule.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLease(ctx, s.db, lease)
}

func saveLease(ctx context.Context, db dbtx, lease *schedule.Lease) error {
	amounts := make(map[string]string, len(lease.MonthlyAmounts))
	for name, v := range lease.MonthlyAmounts {
		amounts[name] = v.String()
	}
	amountsJSON, err := json.Marshal(amounts)
	if err != nil {
		return fmt.Errorf("encode monthly amounts: %w", err)
	}

	query := `
		INSERT INTO leases
		(id, start_date, end_date, interval_months, monthly_amounts_json,
		 initial_payment, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			interval_months = excluded.interval_months,
			monthly_amounts_json = excluded.monthly_amounts_json,
			initial_payment = excluded.initial_payment,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, query,
		lease.ID,
		nullTime(lease.StartDate),
		nullTime(lease.EndDate),
		lease.IntervalMonths,
		string(amountsJSON),
		lease.InitialPayment.String(),
		lease.Active,
		now, now,
	)
	return err
}

// GetLease returns (nil, nil) when the lease is absent.
func (s *Store) GetLease(ctx context.Context, id schedule.LeaseID) (*schedule.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLease(ctx, s.db, id)
}

func getLease(ctx context.Context, db dbtx, id schedule.LeaseID) (*schedule.Lease, error) {
	query := `
		SELECT id, start_date, end_date, interval_months, monthly_amounts_json,
		       initial_payment, active, created_at, updated_at
		FROM leases WHERE id = ?
	`

	var (
		lease                schedule.Lease
		startDate, endDate   sql.NullString
		amountsJSON          string
		initialPayment       string
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&lease.ID, &startDate, &endDate, &lease.IntervalMonths,
		&amountsJSON, &initialPayment, &lease.Active, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lease: %w", err)
	}

	lease.StartDate = parseNullTime(startDate)
	lease.EndDate = parseNullTime(endDate)
	lease.InitialPayment = mustDecimal(initialPayment)
	lease.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	lease.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	var raw map[string]string
	if err := json.Unmarshal([]byte(amountsJSON), &raw); err != nil {
		return nil, fmt.Errorf("decode monthly amounts: %w", err)
	}
	lease.MonthlyAmounts = make(schedule.SubAmounts, len(raw))
	for name, v := range raw {
		lease.MonthlyAmounts[name] = mustDecimal(v)
	}

	return &lease, nil
}

// ListActiveLeaseIDs returns the ids of active leases, stable order.
func (s *Store) ListActiveLeaseIDs(ctx context.Context) ([]schedule.LeaseID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveLeaseIDs(ctx, s.db)
}

func listActiveLeaseIDs(ctx context.Context, db dbtx) ([]schedule.LeaseID, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id FROM leases WHERE active = TRUE ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []schedule.LeaseID
	for rows.Next() {
		var id schedule.LeaseID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// ENTRY STORE (schedule.EntryStore interface)
// =============================================================================

// InsertEntries bulk-inserts schedule entries.
func (s *Store) InsertEntries(ctx context.Context, entries []schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEntries(ctx, s.db, entries)
}

func insertEntries(ctx context.Context, db dbtx, entries []schedule.Entry) error {
	query := `
		INSERT INTO schedule_entries
		(id, lease_id, due_date, payable_amount, paid_amount, payment_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		_, err := db.ExecContext(ctx, query,
			e.ID, e.LeaseID,
			e.DueDate.UTC().Format(time.RFC3339),
			e.PayableAmount.String(),
			e.PaidAmount.String(),
			nullTime(e.PaymentDate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// DeleteEntries removes every entry of the lease.
func (s *Store) DeleteEntries(ctx context.Context, leaseID schedule.LeaseID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntries(ctx, s.db, leaseID)
}

func deleteEntries(ctx context.Context, db dbtx, leaseID schedule.LeaseID) (int, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM schedule_entries WHERE lease_id = ?", leaseID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteEntriesBefore removes entries due strictly before cutoff.
func (s *Store) DeleteEntriesBefore(ctx context.Context, leaseID schedule.LeaseID, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntriesBefore(ctx, s.db, leaseID, cutoff)
}

func deleteEntriesBefore(ctx context.Context, db dbtx, leaseID schedule.LeaseID, cutoff time.Time) (int, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM schedule_entries WHERE lease_id = ? AND due_date < ?",
		leaseID, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListEntries returns the lease's entries, due date ascending.
func (s *Store) ListEntries(ctx context.Context, leaseID schedule.LeaseID) ([]schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, leaseID)
}

func listEntries(ctx context.Context, db dbtx, leaseID schedule.LeaseID) ([]schedule.Entry, error) {
	query := `
		SELECT id, lease_id, due_date, payable_amount, paid_amount, payment_date
		FROM schedule_entries
		WHERE lease_id = ?
		ORDER BY due_date ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, leaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []schedule.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry returns (nil, nil) when the entry is absent.
func (s *Store) GetEntry(ctx context.Context, id schedule.EntryID) (*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, db dbtx, id schedule.EntryID) (*schedule.Entry, error) {
	query := `
		SELECT id, lease_id, due_date, payable_amount, paid_amount, payment_date
		FROM schedule_entries WHERE id = ?
	`

	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntry(rows *sql.Rows) (schedule.Entry, error) {
	var (
		e           schedule.Entry
		dueDate     string
		payable     string
		paid        string
		paymentDate sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.LeaseID, &dueDate, &payable, &paid, &paymentDate); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	t, _ := time.Parse(time.RFC3339, dueDate)
	e.DueDate = t
	e.PayableAmount = mustDecimal(payable)
	e.PaidAmount = mustDecimal(paid)
	e.PaymentDate = parseNullTime(paymentDate)
	return e, nil
}

// UpdateEntryPayment sets the entry's paid amount and payment date, the only
// fields that mutate after creation.
func (s *Store) UpdateEntryPayment(ctx context.Context, id schedule.EntryID, paid decimal.Decimal, paymentDate *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntryPayment(ctx, s.db, id, paid, paymentDate)
}

func updateEntryPayment(ctx context.Context, db dbtx, id schedule.EntryID, paid decimal.Decimal, paymentDate *time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE schedule_entries SET paid_amount = ?, payment_date = ? WHERE id = ?",
		paid.String(), nullTime(paymentDate), id)
	return err
}

// =============================================================================
// PAYMENT FEED (schedule.PaymentFeed interface)
// =============================================================================

// ListPayments returns the lease's recorded payments, payment date ascending.
func (s *Store) ListPayments(ctx context.Context, leaseID schedule.LeaseID) ([]schedule.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, leaseID)
}

func listPayments(ctx context.Context, db dbtx, leaseID schedule.LeaseID) ([]schedule.Payment, error) {
	query := `
		SELECT id, lease_id, paid_amount, payment_date, verified, bank_ref
		FROM payments
		WHERE lease_id = ?
		ORDER BY payment_date ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, leaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []schedule.Payment
	for rows.Next() {
		var (
			p           schedule.Payment
			paid        string
			paymentDate string
			bankRef     sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.LeaseID, &paid, &paymentDate, &p.Verified, &bankRef); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaidAmount = mustDecimal(paid)
		p.PaymentDate, _ = time.Parse(time.RFC3339, paymentDate)
		p.BankRef = bankRef.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// RecordPayment persists a receipt. Recording belongs to the payment
// workflow; the engine only ever reads these rows.
func (s *Store) RecordPayment(ctx context.Context, p schedule.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, lease_id, paid_amount, payment_date, verified, bank_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.LeaseID,
		p.PaidAmount.String(),
		p.PaymentDate.UTC().Format(time.RFC3339),
		p.Verified,
		nullString(p.BankRef),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (schedule.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The write lock is held
// for the whole transaction so reads inside it observe its own writes.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call through the open transaction, bypassing the
// parent mutex (already held by WithTx).
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetLease(ctx context.Context, id schedule.LeaseID) (*schedule.Lease, error) {
	return getLease(ctx, ts.tx, id)
}

func (ts *txStore) ListActiveLeaseIDs(ctx context.Context) ([]schedule.LeaseID, error) {
	return listActiveLeaseIDs(ctx, ts.tx)
}

func (ts *txStore) InsertEntries(ctx context.Context, entries []schedule.Entry) error {
	return insertEntries(ctx, ts.tx, entries)
}

func (ts *txStore) DeleteEntries(ctx context.Context, leaseID schedule.LeaseID) (int, error) {
	return deleteEntries(ctx, ts.tx, leaseID)
}

func (ts *txStore) DeleteEntriesBefore(ctx context.Context, leaseID schedule.LeaseID, cutoff time.Time) (int, error) {
	return deleteEntriesBefore(ctx, ts.tx, leaseID, cutoff)
}

func (ts *txStore) ListEntries(ctx context.Context, leaseID schedule.LeaseID) ([]schedule.Entry, error) {
	return listEntries(ctx, ts.tx, leaseID)
}

func (ts *txStore) GetEntry(ctx context.Context, id schedule.EntryID) (*schedule.Entry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) UpdateEntryPayment(ctx context.Context, id schedule.EntryID, paid decimal.Decimal, paymentDate *time.Time) error {
	return updateEntryPayment(ctx, ts.tx, id, paid, paymentDate)
}

func (ts *txStore) ListPayments(ctx context.Context, leaseID schedule.LeaseID) ([]schedule.Payment, error) {
	return listPayments(ctx, ts.tx, leaseID)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
