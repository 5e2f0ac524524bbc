package conflicts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orgsync/orgsync/internal/grants"
	"github.com/orgsync/orgsync/internal/observability"
	"github.com/orgsync/orgsync/internal/platform/httpx"
)

// RepositoryPort defines persistence methods used by the service.
type RepositoryPort interface {
	UpsertOpen(ctx context.Context, finding Finding) (Record, error)
	List(ctx context.Context, filters Filters) ([]Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	Close(ctx context.Context, id uuid.UUID, status Status, resolvedBy string) (Record, error)
	CountOpenBySeverity(ctx context.Context) (map[Severity]int, error)
}

// AuditRecorder appends resolution entries to the audit log.
type AuditRecorder interface {
	RecordConflictResolution(ctx context.Context, operatorID, detail string) (int64, error)
}

// Service coordinates detection, listing, and resolution of conflicts.
// Resolution is an admin decision; the detector only reports.
type Service struct {
	repo     RepositoryPort
	detector *Detector
	store    grants.Store
	auditor  AuditRecorder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, detector *Detector, store grants.Store, auditor AuditRecorder, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, detector: detector, store: store, auditor: auditor, metrics: metrics, logger: logger}
}

// Scan runs detection and persists findings, refreshing open records rather
// than duplicating them. It returns the records touched by this scan.
func (s *Service) Scan(ctx context.Context) ([]Record, error) {
	findings, err := s.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(findings))
	for _, finding := range findings {
		record, err := s.repo.UpsertOpen(ctx, finding)
		if err != nil {
			return nil, fmt.Errorf("conflicts: persist finding for department %d: %w", finding.DepartmentID, err)
		}
		records = append(records, record)
	}
	s.refreshGauges(ctx)
	return records, nil
}

// List returns conflict records matching the filters.
func (s *Service) List(ctx context.Context, filters Filters) ([]Record, error) {
	return s.repo.List(ctx, filters)
}

// ResolveResult reports the outcome of one resolution action.
type ResolveResult struct {
	Record       Record
	UpdatedGrant *grants.Grant
	AuditEntryID int64
}

// Resolve closes a pending record. apply_proposal deletes the stale row for
// low-severity findings and acknowledges the subtree change for high ones;
// dismiss closes the record without touching grants. Every resolution is
// recorded in the audit log.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, operatorID, action string) (ResolveResult, error) {
	if operatorID == "" {
		return ResolveResult{}, fmt.Errorf("%w: operator id required", httpx.ErrValidation)
	}
	if action != ActionApplyProposal && action != ActionDismiss {
		return ResolveResult{}, fmt.Errorf("%w: unknown action %q", httpx.ErrValidation, action)
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return ResolveResult{}, err
	}
	if record.Status != StatusPending {
		return ResolveResult{}, fmt.Errorf("%w: conflict already %s", httpx.ErrValidation, record.Status)
	}

	var updated *grants.Grant
	closeStatus := StatusDismissed
	if action == ActionApplyProposal {
		closeStatus = StatusResolved
		if record.Kind == KindStaleInherited {
			if err := s.store.ApplyDepartment(ctx, record.DepartmentID, nil, []int64{record.PermissionID}); err != nil {
				return ResolveResult{}, fmt.Errorf("conflicts: delete stale row: %w", err)
			}
		}
		updated, err = s.currentGrant(ctx, record.DepartmentID, record.PermissionID)
		if err != nil {
			return ResolveResult{}, err
		}
	}

	closed, err := s.repo.Close(ctx, id, closeStatus, operatorID)
	if err != nil {
		return ResolveResult{}, err
	}

	detail := fmt.Sprintf("conflict %s %s for department %d permission %d", record.Kind, action, record.DepartmentID, record.PermissionID)
	auditID, err := s.auditor.RecordConflictResolution(ctx, operatorID, detail)
	if err != nil {
		s.logger.Error("record conflict resolution", slog.Any("error", err))
	}
	s.refreshGauges(ctx)
	return ResolveResult{Record: closed, UpdatedGrant: updated, AuditEntryID: auditID}, nil
}

// currentGrant returns the resolved grant for the pair after the action, or
// nil when nothing flows anymore.
func (s *Service) currentGrant(ctx context.Context, deptID, permID int64) (*grants.Grant, error) {
	resolved, err := s.store.ResolvedGrants(ctx, deptID)
	if err != nil {
		return nil, fmt.Errorf("conflicts: read resolved grants: %w", err)
	}
	for _, g := range resolved {
		if g.PermissionID == permID {
			return &g, nil
		}
	}
	return nil, nil
}

func (s *Service) refreshGauges(ctx context.Context) {
	counts, err := s.repo.CountOpenBySeverity(ctx)
	if err != nil {
		s.logger.Warn("count open conflicts", slog.Any("error", err))
		return
	}
	s.metrics.SetOpenConflicts(string(SeverityLow), counts[SeverityLow])
	s.metrics.SetOpenConflicts(string(SeverityHigh), counts[SeverityHigh])
}
