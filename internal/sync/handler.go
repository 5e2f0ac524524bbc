package sync

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/orgsync/orgsync/internal/platform/httpx"
	"github.com/orgsync/orgsync/internal/shared"
)

// Handler exposes the sync trigger and status endpoints.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	rateLimit    func(http.Handler) http.Handler
	requireCap   func(shared.Capability) func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance. A run's duration scales with the
// department count, so triggers are rate limited per operator.
func NewHandler(logger *slog.Logger, orchestrator *Orchestrator, requireCap func(shared.Capability) func(http.Handler) http.Handler) *Handler {
	limiter := httprate.Limit(6, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if op, ok := shared.OperatorFromContext(r.Context()); ok && op.ID != "" {
			return "operator:" + op.ID, nil
		}
		return httprate.KeyByIP(r)
	}))
	return &Handler{
		logger:       logger,
		orchestrator: orchestrator,
		rateLimit:    limiter,
		requireCap:   requireCap,
	}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireCap(shared.CapSyncRun))
		r.Use(h.rateLimit)
		r.Post("/sync", h.triggerSync)
	})
	r.Get("/sync/status", h.syncStatus)
}

type syncConflictResponse struct {
	Message string `json:"message"`
}

type syncSummaryResponse struct {
	RunID          string   `json:"runId"`
	ProcessedCount int      `json:"processedCount"`
	ErrorCount     int      `json:"errorCount"`
	DurationMs     int64    `json:"durationMs"`
	Errors         []string `json:"errors"`
	Partial        bool     `json:"partial,omitempty"`
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok || op.ID == "" {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	summary, err := h.orchestrator.Sync(r.Context(), op.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSyncRunning):
			httpx.JSON(w, http.StatusConflict, syncConflictResponse{Message: "sync already running"})
		case errors.Is(err, httpx.ErrValidation):
			httpx.RespondError(w, err)
		default:
			h.logger.Error("sync run failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	errorSamples := summary.ErrorSamples
	if errorSamples == nil {
		errorSamples = []string{}
	}
	httpx.JSON(w, http.StatusOK, syncSummaryResponse{
		RunID:          summary.RunID,
		ProcessedCount: summary.Processed,
		ErrorCount:     summary.Errors,
		DurationMs:     summary.DurationMs,
		Errors:         errorSamples,
		Partial:        summary.Partial,
	})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.Status(r.Context())
	if err != nil {
		h.logger.Error("read sync status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}
