package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/accounting/ledgertest"
	"github.com/battwheels/ledgercore/internal/observability"
	"github.com/battwheels/ledgercore/internal/shared"
	"github.com/battwheels/ledgercore/jobs"
)

const tenant = "org123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	cfg := validConfig()
	cfg.RateLimitPerMinute = 1000
	return &cfg
}

type routerFixture struct {
	handler http.Handler
	metrics *observability.Metrics
}

func newRouterFixture(t *testing.T, checks map[string]HealthCheck) routerFixture {
	t.Helper()
	ledger := ledgertest.New()
	cfg := testConfig()
	metrics := observability.NewMetrics()
	logger := discardLogger()
	services := NewServices(Repositories{
		Accounts:  ledger.Accounts(),
		Sequences: ledger.Sequences(),
		Journals:  ledger.Journals(),
		Reports:   ledger.Reports(),
	}, cfg, metrics, logger)

	return routerFixture{
		metrics: metrics,
		handler: NewRouter(RouterParams{
			Logger:     logger,
			Config:     cfg,
			Services:   services,
			JobHandler: jobs.NewHandler(nil, logger),
			Metrics:    metrics,
			Checks:     checks,
		}),
	}
}

func (f routerFixture) do(t *testing.T, method, path string, scoped bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if scoped {
		req.Header.Set(shared.TenantHeader, tenant)
		req.Header.Set(shared.ActorHeader, "tester")
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestNewServicesWiresOnlyAvailablePorts(t *testing.T) {
	ledger := ledgertest.New()
	svc := NewServices(Repositories{Accounts: ledger.Accounts(), Journals: ledger.Journals()}, testConfig(), nil, nil)

	assert.NotNil(t, svc.Accounts)
	assert.NotNil(t, svc.Journals)
	assert.NotNil(t, svc.Hooks)
	assert.Nil(t, svc.Sequences)
	assert.Nil(t, svc.Invoices)
	assert.Nil(t, svc.CreditNotes)
	assert.Nil(t, svc.Inventory)
}

func TestPostgresRepositoriesRequiresPool(t *testing.T) {
	_, err := PostgresRepositories(nil, nil, testConfig())
	require.Error(t, err)
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rr := f.do(t, http.MethodGet, "/healthz", false)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
}

func TestHealthzDegraded(t *testing.T) {
	f := newRouterFixture(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	rr := f.do(t, http.MethodGet, "/healthz", false)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"down"}}`, rr.Body.String())
}

func TestAPIRequiresTenant(t *testing.T) {
	f := newRouterFixture(t, nil)
	rr := f.do(t, http.MethodGet, "/api/v1/accounts", false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), shared.TenantHeader)
}

func TestRouterServesLedgerAPI(t *testing.T) {
	f := newRouterFixture(t, nil)

	rr := f.do(t, http.MethodPost, "/api/v1/accounts/ensure", true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/v1/accounts", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"1000"`)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	first := f.do(t, http.MethodPost, "/api/v1/sequences/invoice/next", true)
	second := f.do(t, http.MethodPost, "/api/v1/sequences/invoice/next", true)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.NotEqual(t, first.Body.String(), second.Body.String())

	rr = f.do(t, http.MethodGet, "/api/v1/reports/trial-balance?as_of="+time.Now().UTC().Format(time.DateOnly), true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"is_balanced":true`)

	// invoices need their own repository, which this graph lacks
	rr = f.do(t, http.MethodGet, "/api/v1/invoices", true)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/metrics", false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ledgercore_sequence_issued_total{kind="invoice"} 2`)
	assert.Contains(t, rr.Body.String(), `ledgercore_trial_balance_checks_total{result="balanced"} 1`)
	assert.Contains(t, rr.Body.String(), `ledgercore_http_requests_total{code="200",method="POST",route="/api/v1/accounts/ensure"} 1`)
}

func TestJobsHealthWithoutQueue(t *testing.T) {
	f := newRouterFixture(t, nil)
	rr := f.do(t, http.MethodGet, "/jobs/health", false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queue":"default"`)
}
