package ar

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(internalShared.ScopeMiddleware)
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(internalShared.TenantHeader, tenant)
	req.Header.Set(internalShared.ActorHeader, "user-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateInvoiceRequiresTaxRate(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f.svc)

	rr := post(t, router, "/invoices", `{"customer_name":"Ravi Motors","items":[{"name":"Labour","quantity":"2","rate":"100"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "TaxRate")
	require.Empty(t, f.repo.invoices)

	rr = post(t, router, "/invoices", `{"customer_name":"Ravi Motors","items":[{"name":"Labour","quantity":"2","rate":"100","tax_rate":"0"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "INV-00001", created["number"])
	require.Equal(t, true, created["posted"])
}
