package conflicts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync/orgsync/internal/shared"
)

func allowAllCaps(shared.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func newTestRouter(t *testing.T, svc *Service) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithOperator(req.Context(), shared.Operator{
				ID:           "admin-1",
				Capabilities: shared.CapabilitiesForRoles([]string{"admin"}),
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(testLogger(), svc, allowAllCaps).MountRoutes(r)
	return r
}

func TestScanEndpointReturnsRecords(t *testing.T) {
	store := newFakeStore()
	store.addInherited(2, 100, true, 9, 1)
	svc := newTestService(newFakeRepo(), store, &fakeAuditor{}, chain())
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conflicts/scan", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "stale_inherited", body[0]["kind"])
	assert.Equal(t, "pending", body[0]["status"])
}

func TestListEndpointFiltersBySeverity(t *testing.T) {
	repo := newFakeRepo()
	repo.add(Record{DepartmentID: 2, PermissionID: 100, Kind: KindStaleInherited, Severity: SeverityLow})
	repo.add(Record{DepartmentID: 3, PermissionID: 100, Kind: KindRevokingOverride, Severity: SeverityHigh})
	svc := newTestService(repo, newFakeStore(), &fakeAuditor{}, chain())
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflicts?severity=high", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "revoking_override", body[0]["kind"])
}

func TestResolveEndpoint(t *testing.T) {
	store := newFakeStore()
	store.addInherited(2, 100, true, 9, 1)
	repo := newFakeRepo()
	svc := newTestService(repo, store, &fakeAuditor{}, chain())
	router := newTestRouter(t, svc)

	record := repo.add(Record{DepartmentID: 2, PermissionID: 100, Kind: KindStaleInherited, Severity: SeverityLow})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conflicts/"+record.ID.String()+"/resolve",
		strings.NewReader(`{"action":"apply_proposal"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Conflict     map[string]any `json:"conflict"`
		UpdatedGrant map[string]any `json:"updatedGrant"`
		AuditEntryID int64          `json:"auditEntryId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "resolved", body.Conflict["status"])
	assert.Nil(t, body.UpdatedGrant)
	assert.Equal(t, int64(1), body.AuditEntryID)
}

func TestResolveEndpointRejectsUnknownAction(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStore(), &fakeAuditor{}, chain())
	router := newTestRouter(t, svc)
	record := repo.add(Record{DepartmentID: 2, PermissionID: 100, Kind: KindStaleInherited})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conflicts/"+record.ID.String()+"/resolve",
		strings.NewReader(`{"action":"escalate"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveEndpointRejectsBadID(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStore(), &fakeAuditor{}, chain())
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conflicts/not-a-uuid/resolve",
		strings.NewReader(`{"action":"dismiss"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
