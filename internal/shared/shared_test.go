package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeMiddleware(t *testing.T) {
	var tenant, actor string
	handler := ScopeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = TenantFromContext(r.Context())
		actor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, " org-1 ")
	req.Header.Set(ActorHeader, "advisor-7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "org-1", tenant)
	assert.Equal(t, "advisor-7", actor)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), ErrTenantMissing.Error())
}

func TestAdvisoryLockIDStable(t *testing.T) {
	a := AdvisoryLockID(LedgerLockKey("credit_note", "org-1", "inv-1"))
	assert.Equal(t, a, AdvisoryLockID(LedgerLockKey("credit_note", "org-1", "inv-1")))
	assert.NotEqual(t, a, AdvisoryLockID(LedgerLockKey("credit_note", "org-2", "inv-1")))
	assert.Equal(t, "ledger:credit_note:org-1:inv-1:lock", LedgerLockKey("credit_note", "org-1", "inv-1"))
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "post", Entity: "journal_entry", EntityID: "1"}.Validate())
	require.Error(t, AuditLog{TenantID: "org-1", Action: "post"}.Validate())
	require.NoError(t, AuditLog{TenantID: "org-1", Action: "post", Entity: "journal_entry", EntityID: "1"}.Validate())
}
