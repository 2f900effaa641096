package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheger/billing-engine/api"
	"github.com/sheger/billing-engine/schedule"
	"github.com/sheger/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := schedule.NewEngine(store, schedule.CalendarConverter{})
	return api.NewRouter(api.NewHandler(store, engine))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// sevenMonthLease spans Ethiopian 2016-01-05 .. 2016-08-05 (7 whole months),
// Gregorian 2023-09-16 .. 2024-04-13.
func sevenMonthLease(id string) map[string]any {
	return map[string]any{
		"id":              id,
		"start_date":      "2023-09-16",
		"end_date":        "2024-04-13",
		"interval_months": 2,
		"monthly_amounts": map[string]string{
			"base":    "1000",
			"utility": "500",
		},
	}
}

func createLease(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/leases", sevenMonthLease(id))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// LEASES
// =============================================================================

func TestCreateLease(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/leases", sevenMonthLease("lease-a"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	lease := decodeJSON[api.LeaseDTO](t, rec)
	assert.Equal(t, "lease-a", lease.ID)
	assert.Equal(t, "1500", lease.MonthlyTotal)
	assert.Equal(t, 2, lease.IntervalMonths)
	assert.True(t, lease.Active)
}

func TestCreateLease_GeneratesIDWhenOmitted(t *testing.T) {
	router := newTestRouter(t)

	payload := sevenMonthLease("")
	delete(payload, "id")
	rec := doRequest(t, router, http.MethodPost, "/api/leases", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	lease := decodeJSON[api.LeaseDTO](t, rec)
	assert.NotEmpty(t, lease.ID)
}

func TestCreateLease_Validation(t *testing.T) {
	router := newTestRouter(t)

	bad := sevenMonthLease("lease-a")
	bad["interval_months"] = 0
	rec := doRequest(t, router, http.MethodPost, "/api/leases", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad = sevenMonthLease("lease-a")
	bad["monthly_amounts"] = map[string]string{}
	rec = doRequest(t, router, http.MethodPost, "/api/leases", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad = sevenMonthLease("lease-a")
	bad["monthly_amounts"] = map[string]string{"base": "not-a-number"}
	rec = doRequest(t, router, http.MethodPost, "/api/leases", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad = sevenMonthLease("lease-a")
	bad["start_date"] = "16/09/2023"
	rec = doRequest(t, router, http.MethodPost, "/api/leases", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLease(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")

	rec := doRequest(t, router, http.MethodGet, "/api/leases/lease-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lease := decodeJSON[api.LeaseDTO](t, rec)
	assert.Equal(t, "2023-09-16", lease.StartDate)
	assert.Equal(t, "2024-04-13", lease.EndDate)

	rec = doRequest(t, router, http.MethodGet, "/api/leases/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestRegenerateSchedule(t *testing.T) {
	// GIVEN: a 7-month lease billed every 2 months at 1500/month
	// WHEN: regenerating over HTTP
	// THEN: 3 entries of 3000 plus a prorated final entry of 1500

	router := newTestRouter(t)
	createLease(t, router, "lease-a")

	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[api.RegenerateResponse](t, rec)
	require.Len(t, resp.Entries, 4)
	assert.Equal(t, "3000", resp.Entries[0].PayableAmount)
	assert.Equal(t, "1500", resp.Entries[3].PayableAmount)
	assert.Equal(t, "2023-09-16", resp.Entries[0].DueDate)
	assert.Empty(t, resp.Credit)

	rec = doRequest(t, router, http.MethodGet, "/api/leases/lease-a/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeJSON[[]api.EntryDTO](t, rec)
	assert.Len(t, entries, 4)
}

func TestRegenerateSchedule_UnknownLease(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/leases/nope/schedule/regenerate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegenerateSchedule_MissingDates(t *testing.T) {
	router := newTestRouter(t)

	payload := sevenMonthLease("lease-a")
	delete(payload, "end_date")
	rec := doRequest(t, router, http.MethodPost, "/api/leases", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetSchedule(t *testing.T) {
	// Cutoff between the 2nd and 3rd due dates drops the first two entries.

	router := newTestRouter(t)
	createLease(t, router, "lease-a")
	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/reset",
		map[string]string{"cutoff_date": "2024-01-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[api.ResetResponse](t, rec)
	assert.Equal(t, 2, resp.RemovedCount)
	assert.Len(t, resp.Entries, 2)
}

func TestResetSchedule_BadCutoff(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")

	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/reset",
		map[string]string{"cutoff_date": "January 1st"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegenerateAll(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")
	createLease(t, router, "lease-b")

	broken := sevenMonthLease("lease-broken")
	delete(broken, "end_date")
	rec := doRequest(t, router, http.MethodPost, "/api/leases", broken)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/admin/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[api.BulkRegenerateResponse](t, rec)
	assert.Equal(t, 2, resp.Regenerated)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "lease-broken", resp.Failures[0].LeaseID)
	assert.NotEmpty(t, resp.Failures[0].Error)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestOverrideEntry(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")
	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[api.RegenerateResponse](t, rec)
	entryID := resp.Entries[1].ID

	rec = doRequest(t, router, http.MethodPost, "/api/entries/"+entryID+"/override",
		map[string]bool{"paid": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entry := decodeJSON[api.EntryDTO](t, rec)
	assert.True(t, entry.Paid)
	assert.Equal(t, entry.PayableAmount, entry.PaidAmount)
	assert.NotEmpty(t, entry.PaymentDate)

	rec = doRequest(t, router, http.MethodPost, "/api/entries/"+entryID+"/override",
		map[string]bool{"paid": false})
	require.Equal(t, http.StatusOK, rec.Code)
	entry = decodeJSON[api.EntryDTO](t, rec)
	assert.False(t, entry.Paid)
	assert.Equal(t, "0", entry.PaidAmount)
	assert.Empty(t, entry.PaymentDate)
}

func TestOverrideEntry_UnknownEntry(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/entries/nope/override",
		map[string]bool{"paid": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordAndListPayments(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")

	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/payments",
		map[string]any{"amount": "2500", "payment_date": "2023-10-01", "verified": true, "bank_ref": "TRX-99"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	payment := decodeJSON[api.PaymentDTO](t, rec)
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, "2500", payment.Amount)
	assert.Equal(t, "2023-10-01", payment.PaymentDate)
	assert.True(t, payment.Verified)
	assert.Equal(t, "TRX-99", payment.BankRef)

	rec = doRequest(t, router, http.MethodGet, "/api/leases/lease-a/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decodeJSON[[]api.PaymentDTO](t, rec)
	assert.Len(t, payments, 1)
}

func TestRecordPayment_Validation(t *testing.T) {
	router := newTestRouter(t)
	createLease(t, router, "lease-a")

	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/payments",
		map[string]any{"amount": "-100", "payment_date": "2023-10-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/payments",
		map[string]any{"amount": "abc", "payment_date": "2023-10-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/payments",
		map[string]any{"amount": "100", "payment_date": "bad-date"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPayment_UnknownLease(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/leases/nope/payments",
		map[string]any{"amount": "100", "payment_date": "2023-10-01"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentAffectsNextRegeneration(t *testing.T) {
	// Recording a payment does not touch the schedule until the next
	// regeneration reconciles it.

	router := newTestRouter(t)
	createLease(t, router, "lease-a")
	rec := doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/payments",
		map[string]any{"amount": "3000", "payment_date": "2023-10-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/leases/lease-a/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeJSON[[]api.EntryDTO](t, rec)
	assert.False(t, entries[0].Paid, "schedule untouched until reconciliation")

	rec = doRequest(t, router, http.MethodPost, "/api/leases/lease-a/schedule/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[api.RegenerateResponse](t, rec)
	assert.True(t, resp.Entries[0].Paid)
	assert.Equal(t, "2023-10-01", resp.Entries[0].PaymentDate)
}
