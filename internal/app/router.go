package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/orgsync/orgsync/internal/audit"
	"github.com/orgsync/orgsync/internal/conflicts"
	"github.com/orgsync/orgsync/internal/observability"
	"github.com/orgsync/orgsync/internal/shared"
	syncengine "github.com/orgsync/orgsync/internal/sync"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SyncHandler      *syncengine.Handler
	ConflictsHandler *conflicts.Handler
	AuditHandler     *audit.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with engine defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.SyncHandler.MountRoutes(r)
	params.ConflictsHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(RequireCapability(shared.CapAuditView))
		params.AuditHandler.MountRoutes(r)
	})

	return r
}
