package audit

import (
	"context"
	"errors"
	"time"

	"github.com/orgsync/orgsync/internal/shared"
)

// RepositoryPort defines persistence methods used by the service.
type RepositoryPort interface {
	Append(ctx context.Context, entry Entry) (int64, error)
	LastByType(ctx context.Context, operationType string) (*Entry, error)
	History(ctx context.Context, filters HistoryFilters, limit, offset int) ([]Entry, error)
}

// Service appends and reads audit entries.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// RecordSync appends the entry for one sync run. Error messages are capped
// before they reach storage.
func (s *Service) RecordSync(ctx context.Context, operatorID string, stats RunStats, errorMessages []string) (int64, error) {
	if operatorID == "" {
		return 0, errors.New("audit: operator id required")
	}
	return s.repo.Append(ctx, Entry{
		OperationType: OpPermissionSync,
		OperatorID:    operatorID,
		At:            time.Now().UTC(),
		Stats:         stats,
		Errors:        capErrors(errorMessages),
	})
}

// RecordConflictResolution appends the entry for one resolution action.
func (s *Service) RecordConflictResolution(ctx context.Context, operatorID, detail string) (int64, error) {
	if operatorID == "" {
		return 0, errors.New("audit: operator id required")
	}
	return s.repo.Append(ctx, Entry{
		OperationType: OpConflictResolution,
		OperatorID:    operatorID,
		At:            time.Now().UTC(),
		Stats:         RunStats{Detail: detail},
	})
}

// LastSync returns the most recent sync entry, or nil when none exists.
func (s *Service) LastSync(ctx context.Context) (*Entry, error) {
	return s.repo.LastByType(ctx, OpPermissionSync)
}

// HistoryPage is one window of the audit history.
type HistoryPage struct {
	Entries []Entry
	Paging  shared.Paging
}

// History lists entries newest first with hasNext probing.
func (s *Service) History(ctx context.Context, filters HistoryFilters, page shared.Page) (HistoryPage, error) {
	entries, err := s.repo.History(ctx, filters, page.Size+1, page.Offset())
	if err != nil {
		return HistoryPage{}, err
	}
	hasNext := len(entries) > page.Size
	if hasNext {
		entries = entries[:page.Size]
	}
	return HistoryPage{
		Entries: entries,
		Paging:  shared.Paging{Page: page.Number, Size: page.Size, HasNext: hasNext},
	}, nil
}
