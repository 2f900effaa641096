/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Wire-level shapes, kept apart from domain types. Monetary amounts cross
  the wire as decimal strings ("1500", "1333.33"), never floats. Dates are
  YYYY-MM-DD; instants are RFC3339.

SEE ALSO:
  - handlers.go: the producers/consumers of these types
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheger/billing-engine/schedule"
)

const dateLayout = "2006-01-02"

// =============================================================================
// LEASES
// =============================================================================

// CreateLeaseRequest is the lease intake payload.
type CreateLeaseRequest struct {
	ID             string            `json:"id,omitempty"`
	StartDate      string            `json:"start_date"` // YYYY-MM-DD
	EndDate        string            `json:"end_date"`
	IntervalMonths int               `json:"interval_months"`
	MonthlyAmounts map[string]string `json:"monthly_amounts"` // name -> decimal string
	InitialPayment string            `json:"initial_payment,omitempty"`
	Active         *bool             `json:"active,omitempty"` // default true
}

// LeaseDTO is the lease representation returned to callers.
type LeaseDTO struct {
	ID             string            `json:"id"`
	StartDate      string            `json:"start_date,omitempty"`
	EndDate        string            `json:"end_date,omitempty"`
	IntervalMonths int               `json:"interval_months"`
	MonthlyAmounts map[string]string `json:"monthly_amounts"`
	MonthlyTotal   string            `json:"monthly_total"`
	InitialPayment string            `json:"initial_payment"`
	Active         bool              `json:"active"`
}

// =============================================================================
// SCHEDULE
// =============================================================================

// EntryDTO is one billing obligation.
type EntryDTO struct {
	ID            string `json:"id"`
	LeaseID       string `json:"lease_id"`
	DueDate       string `json:"due_date"`
	PayableAmount string `json:"payable_amount"`
	PaidAmount    string `json:"paid_amount"`
	PaymentDate   string `json:"payment_date,omitempty"`
	Paid          bool   `json:"paid"`
}

// RegenerateResponse is the outcome of a single-lease regeneration.
type RegenerateResponse struct {
	Entries []EntryDTO `json:"entries"`
	Credit  string     `json:"credit,omitempty"` // overpayment surfaced, never dropped
}

// ResetRequest asks for cutoff truncation.
type ResetRequest struct {
	CutoffDate string `json:"cutoff_date"` // YYYY-MM-DD
}

// ResetResponse reports what truncation removed and what remains.
type ResetResponse struct {
	RemovedCount int        `json:"removed_count"`
	Entries      []EntryDTO `json:"entries"`
	Credit       string     `json:"credit,omitempty"`
}

// BulkRegenerateResponse summarizes a bulk run; failed leases are listed,
// the batch itself never aborts on one lease.
type BulkRegenerateResponse struct {
	Regenerated int            `json:"regenerated"`
	Failures    []LeaseFailure `json:"failures"`
}

type LeaseFailure struct {
	LeaseID string `json:"lease_id"`
	Error   string `json:"error"`
}

// OverrideRequest forces an entry fully paid or unpaid.
type OverrideRequest struct {
	Paid bool `json:"paid"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPaymentRequest records a receipt against a lease.
type RecordPaymentRequest struct {
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"` // YYYY-MM-DD
	Verified    bool   `json:"verified"`
	BankRef     string `json:"bank_ref,omitempty"`
}

// PaymentDTO is one recorded receipt.
type PaymentDTO struct {
	ID          string `json:"id"`
	LeaseID     string `json:"lease_id"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
	Verified    bool   `json:"verified"`
	BankRef     string `json:"bank_ref,omitempty"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLeaseDTO(l *schedule.Lease) LeaseDTO {
	amounts := make(map[string]string, len(l.MonthlyAmounts))
	for name, v := range l.MonthlyAmounts {
		amounts[name] = v.String()
	}
	dto := LeaseDTO{
		ID:             string(l.ID),
		IntervalMonths: l.IntervalMonths,
		MonthlyAmounts: amounts,
		MonthlyTotal:   l.MonthlyTotal().String(),
		InitialPayment: l.InitialPayment.String(),
		Active:         l.Active,
	}
	if l.StartDate != nil {
		dto.StartDate = l.StartDate.Format(dateLayout)
	}
	if l.EndDate != nil {
		dto.EndDate = l.EndDate.Format(dateLayout)
	}
	return dto
}

func toEntryDTO(e schedule.Entry) EntryDTO {
	dto := EntryDTO{
		ID:            string(e.ID),
		LeaseID:       string(e.LeaseID),
		DueDate:       e.DueDate.Format(dateLayout),
		PayableAmount: e.PayableAmount.String(),
		PaidAmount:    e.PaidAmount.String(),
		Paid:          e.IsPaid(),
	}
	if e.PaymentDate != nil {
		dto.PaymentDate = e.PaymentDate.Format(dateLayout)
	}
	return dto
}

func toEntryDTOs(entries []schedule.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toPaymentDTO(p schedule.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          p.ID,
		LeaseID:     string(p.LeaseID),
		Amount:      p.PaidAmount.String(),
		PaymentDate: p.PaymentDate.Format(dateLayout),
		Verified:    p.Verified,
		BankRef:     p.BankRef,
	}
}

func creditString(c decimal.Decimal) string {
	if c.IsPositive() {
		return c.String()
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}
