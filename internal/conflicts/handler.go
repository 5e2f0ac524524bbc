package conflicts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/orgsync/orgsync/internal/grants"
	"github.com/orgsync/orgsync/internal/platform/httpx"
	"github.com/orgsync/orgsync/internal/shared"
)

// Handler exposes conflict listing, scanning, and resolution endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	requireCap func(shared.Capability) func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, requireCap func(shared.Capability) func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		requireCap: requireCap,
	}
}

// MountRoutes registers conflict routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireCap(shared.CapConflictsView))
		r.Get("/conflicts", h.listConflicts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireCap(shared.CapConflictsResolve))
		r.Post("/conflicts/scan", h.scan)
		r.Post("/conflicts/{id}/resolve", h.resolve)
	})
}

type recordResponse struct {
	ID                uuid.UUID       `json:"id"`
	DepartmentID      int64           `json:"departmentId"`
	PermissionID      int64           `json:"permissionId"`
	Kind              Kind            `json:"kind"`
	ConflictingValues json.RawMessage `json:"conflictingValues"`
	Proposal          string          `json:"proposal"`
	Severity          Severity        `json:"severity"`
	Status            Status          `json:"status"`
	DetectedAt        time.Time       `json:"detectedAt"`
	ResolvedAt        *time.Time      `json:"resolvedAt,omitempty"`
	ResolvedBy        string          `json:"resolvedBy,omitempty"`
}

func toRecordResponse(record Record) recordResponse {
	return recordResponse{
		ID:                record.ID,
		DepartmentID:      record.DepartmentID,
		PermissionID:      record.PermissionID,
		Kind:              record.Kind,
		ConflictingValues: record.ConflictingValues,
		Proposal:          record.Proposal,
		Severity:          record.Severity,
		Status:            record.Status,
		DetectedAt:        record.DetectedAt,
		ResolvedAt:        record.ResolvedAt,
		ResolvedBy:        record.ResolvedBy,
	}
}

func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := Filters{
		Status:   Status(q.Get("status")),
		Severity: Severity(q.Get("severity")),
	}
	records, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list conflicts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("conflict scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type resolveRequest struct {
	Action string `json:"action" validate:"required,oneof=apply_proposal dismiss"`
}

type grantResponse struct {
	DepartmentID  int64           `json:"departmentId"`
	PermissionID  int64           `json:"permissionId"`
	Granted       bool            `json:"granted"`
	Priority      int             `json:"priority"`
	InheritedFrom *int64          `json:"inheritedFrom"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
}

type resolveResponse struct {
	Conflict     recordResponse `json:"conflict"`
	UpdatedGrant *grantResponse `json:"updatedGrant"`
	AuditEntryID int64          `json:"auditEntryId"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	op, ok := shared.OperatorFromContext(r.Context())
	if !ok || op.ID == "" {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	result, err := h.service.Resolve(r.Context(), id, op.ID, req.Action)
	if err != nil {
		h.logger.Error("resolve conflict", slog.String("conflict", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := resolveResponse{
		Conflict:     toRecordResponse(result.Record),
		AuditEntryID: result.AuditEntryID,
	}
	if result.UpdatedGrant != nil {
		resp.UpdatedGrant = toGrantResponse(*result.UpdatedGrant)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func toGrantResponse(g grants.Grant) *grantResponse {
	return &grantResponse{
		DepartmentID:  g.DepartmentID,
		PermissionID:  g.PermissionID,
		Granted:       g.Granted,
		Priority:      g.Priority,
		InheritedFrom: g.InheritedFrom,
		Conditions:    g.Conditions,
	}
}
