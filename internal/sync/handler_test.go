package sync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgsync/orgsync/internal/shared"
)

func allowAllCaps(shared.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func newTestRouter(t *testing.T, orch *Orchestrator) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithOperator(req.Context(), shared.Operator{
				ID:           "ops-1",
				Capabilities: shared.CapabilitiesForRoles([]string{"admin"}),
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(testLogger(), orch, allowAllCaps).MountRoutes(r)
	return r
}

func TestSyncEndpointReturnsSummary(t *testing.T) {
	store := newMemStore()
	store.setDirect(1, 100, true, 10)
	orch := newTestOrchestrator(t, &stubLister{departments: chainDepartments()}, store, &stubAuditor{})
	router := newTestRouter(t, orch)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RunID          string   `json:"runId"`
		ProcessedCount int      `json:"processedCount"`
		ErrorCount     int      `json:"errorCount"`
		Errors         []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, 3, body.ProcessedCount)
	assert.Zero(t, body.ErrorCount)
	assert.NotNil(t, body.Errors)
}

func TestSyncEndpointConflictWhileRunning(t *testing.T) {
	store := newMemStore()
	lister := &stubLister{departments: chainDepartments()}
	mr, client := testRedis(t)
	orch := NewOrchestrator(lister, store, &stubAuditor{}, client, testLogger(), nil, OrchestratorConfig{})
	router := newTestRouter(t, orch)

	require.NoError(t, mr.Set(shared.PermissionSyncLockKey(), "other-holder"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"sync already running"}`, rec.Body.String())
}

func TestSyncStatusEndpoint(t *testing.T) {
	store := newMemStore()
	orch := newTestOrchestrator(t, &stubLister{}, store, &stubAuditor{})
	router := newTestRouter(t, orch)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "lastSyncTime")
	assert.Contains(t, body, "inheritedPermissionCount")
}
