/*
handlers.go - HTTP handlers for the schedule engine

PURPOSE:
  Thin HTTP surface over the engine. Parses requests, delegates to
  schedule.Engine and the store, maps errors to status codes.

ENDPOINTS:
  Leases:
    POST   /api/leases                              Create/replace a lease
    GET    /api/leases/{id}                         Lease terms
    GET    /api/leases/{id}/schedule                Current schedule
    POST   /api/leases/{id}/schedule/regenerate     Rebuild the schedule
    POST   /api/leases/{id}/schedule/reset          Cutoff truncation
    GET    /api/leases/{id}/payments                Recorded payments
    POST   /api/leases/{id}/payments                Record a payment

  Entries:
    POST   /api/entries/{id}/override               Force paid/unpaid

  Admin:
    POST   /api/admin/regenerate                    Bulk regeneration

ERROR HANDLING:
  - 400: invalid payloads and lease terms (missing dates, bad interval, fuse)
  - 404: lease or entry not found
  - 500: store failures

SEE ALSO:
  - dto.go: wire shapes
  - server.go: routing and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sheger/billing-engine/schedule"
	"github.com/sheger/billing-engine/store/sqlite"
)

// Handler holds the dependencies of every endpoint.
type Handler struct {
	Store  *sqlite.Store
	Engine *schedule.Engine
}

// NewHandler wires the handler over a store and engine.
func NewHandler(store *sqlite.Store, engine *schedule.Engine) *Handler {
	return &Handler{Store: store, Engine: engine}
}

// engineError maps engine failures to HTTP status codes.
func engineError(w http.ResponseWriter, msg string, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

// =============================================================================
// LEASE HANDLERS
// =============================================================================

// CreateLease stores a lease's financial terms.
func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.IntervalMonths < 1 {
		writeError(w, http.StatusBadRequest, "interval_months must be a positive integer", nil)
		return
	}
	if len(req.MonthlyAmounts) == 0 {
		writeError(w, http.StatusBadRequest, "monthly_amounts must not be empty", nil)
		return
	}

	lease := schedule.Lease{
		ID:             schedule.LeaseID(req.ID),
		IntervalMonths: req.IntervalMonths,
		MonthlyAmounts: make(schedule.SubAmounts, len(req.MonthlyAmounts)),
		Active:         true,
	}
	if lease.ID == "" {
		lease.ID = schedule.LeaseID(uuid.NewString())
	}
	if req.Active != nil {
		lease.Active = *req.Active
	}

	for name, s := range req.MonthlyAmounts {
		amount, err := decimal.NewFromString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount for "+name, err)
			return
		}
		lease.MonthlyAmounts[name] = amount
	}

	if req.InitialPayment != "" {
		initial, err := decimal.NewFromString(req.InitialPayment)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid initial_payment", err)
			return
		}
		lease.InitialPayment = initial
	}

	if req.StartDate != "" {
		start, err := parseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
			return
		}
		lease.StartDate = &start
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
		lease.EndDate = &end
	}

	if err := h.Store.SaveLease(r.Context(), &lease); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save lease", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaseDTO(&lease))
}

// GetLease returns the lease's terms.
func (h *Handler) GetLease(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	lease, err := h.Store.GetLease(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load lease", err)
		return
	}
	if lease == nil {
		writeError(w, http.StatusNotFound, "Lease not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toLeaseDTO(lease))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedule returns the lease's current entries, due date ascending.
func (h *Handler) ListSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	lease, err := h.Store.GetLease(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load lease", err)
		return
	}
	if lease == nil {
		writeError(w, http.StatusNotFound, "Lease not found", nil)
		return
	}

	entries, err := h.Store.ListEntries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// RegenerateSchedule rebuilds one lease's schedule from its terms.
func (h *Handler) RegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	result, err := h.Engine.Regenerate(r.Context(), id)
	if err != nil {
		engineError(w, "Failed to regenerate schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, RegenerateResponse{
		Entries: toEntryDTOs(result.Entries),
		Credit:  creditString(result.Credit),
	})
}

// ResetSchedule deletes entries due before the cutoff and reconciles the rest.
func (h *Handler) ResetSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cutoff, err := parseDate(req.CutoffDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cutoff_date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Engine.ResetAndReconcile(r.Context(), id, cutoff)
	if err != nil {
		engineError(w, "Failed to reset schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, ResetResponse{
		RemovedCount: result.RemovedCount,
		Entries:      toEntryDTOs(result.Entries),
		Credit:       creditString(result.Credit),
	})
}

// RegenerateAll rebuilds every active lease's schedule, sequentially.
// Failed leases are reported; the batch never aborts on one lease.
func (h *Handler) RegenerateAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.RegenerateAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Bulk regeneration failed", err)
		return
	}

	resp := BulkRegenerateResponse{
		Regenerated: result.Regenerated,
		Failures:    make([]LeaseFailure, 0, len(result.Failures)),
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, LeaseFailure{
			LeaseID: string(f.LeaseID),
			Error:   f.Err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// OverrideEntry forces a single entry fully paid or unpaid, bypassing
// reconciliation.
func (h *Handler) OverrideEntry(w http.ResponseWriter, r *http.Request) {
	id := schedule.EntryID(chi.URLParam(r, "id"))

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Engine.SetEntryPaid(r.Context(), id, req.Paid)
	if err != nil {
		engineError(w, "Failed to override entry", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the lease's recorded payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	payments, err := h.Store.ListPayments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment records a receipt against a lease. The schedule is not
// touched here; reconciliation happens on the next regenerate/reset.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := schedule.LeaseID(chi.URLParam(r, "id"))

	lease, err := h.Store.GetLease(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load lease", err)
		return
	}
	if lease == nil {
		writeError(w, http.StatusNotFound, "Lease not found", nil)
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal", err)
		return
	}
	paidAt, err := parseDate(req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_date (use YYYY-MM-DD)", err)
		return
	}

	payment := schedule.Payment{
		ID:          uuid.NewString(),
		LeaseID:     id,
		PaidAmount:  amount,
		PaymentDate: paidAt,
		Verified:    req.Verified,
		BankRef:     req.BankRef,
	}
	if err := h.Store.RecordPayment(r.Context(), payment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}
