package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	jobmetrics "github.com/battwheels/ledgercore/internal/jobs"
)

var (
	_ journals.Observer  = (*LedgerMetrics)(nil)
	_ sequences.Observer = (*LedgerMetrics)(nil)
	_ reports.Observer   = (*LedgerMetrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jobs.Track("ledger:integrity").End(nil))

	body := scrape(t, metrics)
	require.Contains(t, body, `ledgercore_jobs_total{job="ledger:integrity",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `ledgercore_http_requests_total{code="418",method="GET",route="/test"} 1`)
	require.Contains(t, body, `ledgercore_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.Ledger.PostingObserved("sales", "posted")
	metrics.Ledger.PostingObserved("sales", "posted")
	metrics.Ledger.PostingObserved("credit_note", "rejected")
	metrics.Ledger.SequenceIssued("INV")
	metrics.Ledger.TrialBalanceChecked(false)

	body := scrape(t, metrics)
	require.Contains(t, body, `ledgercore_journal_postings_total{entry_type="sales",outcome="posted"} 2`)
	require.Contains(t, body, `ledgercore_journal_postings_total{entry_type="credit_note",outcome="rejected"} 1`)
	require.Contains(t, body, `ledgercore_sequence_issued_total{kind="INV"} 1`)
	require.Contains(t, body, "ledgercore_trial_balance_imbalanced 1")

	metrics.Ledger.TrialBalanceChecked(true)
	body = scrape(t, metrics)
	require.Contains(t, body, "ledgercore_trial_balance_imbalanced 0")
	require.Contains(t, body, `ledgercore_trial_balance_checks_total{result="balanced"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	var ledger *LedgerMetrics
	ledger.PostingObserved("sales", "posted")
	ledger.TrialBalanceChecked(true)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
