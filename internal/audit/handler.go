package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orgsync/orgsync/internal/platform/httpx"
	"github.com/orgsync/orgsync/internal/shared"
)

// Handler exposes paginated read access to the audit history.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit/history", h.listHistory)
}

type historyEntryResponse struct {
	ID            int64     `json:"id"`
	OperationType string    `json:"operationType"`
	OperatorID    string    `json:"operatorId"`
	At            time.Time `json:"at"`
	Stats         RunStats  `json:"summary"`
	Errors        []string  `json:"errors,omitempty"`
}

type historyResponse struct {
	Entries []historyEntryResponse `json:"entries"`
	Paging  shared.Paging          `json:"paging"`
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := HistoryFilters{
		OperationType: q.Get("operationType"),
		OperatorID:    q.Get("operatorId"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		filters.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		filters.To = t
	}
	pageNum, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	page := shared.NormalizePage(pageNum, pageSize, 100)

	result, err := h.service.History(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("list audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := historyResponse{Entries: make([]historyEntryResponse, 0, len(result.Entries)), Paging: result.Paging}
	for _, entry := range result.Entries {
		resp.Entries = append(resp.Entries, historyEntryResponse{
			ID:            entry.ID,
			OperationType: entry.OperationType,
			OperatorID:    entry.OperatorID,
			At:            entry.At,
			Stats:         entry.Stats,
			Errors:        entry.ExposedErrors(),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
