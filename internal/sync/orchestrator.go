package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/orgsync/orgsync/internal/audit"
	"github.com/orgsync/orgsync/internal/directory"
	"github.com/orgsync/orgsync/internal/grants"
	"github.com/orgsync/orgsync/internal/observability"
	"github.com/orgsync/orgsync/internal/platform/httpx"
	"github.com/orgsync/orgsync/internal/shared"
)

// DepartmentLister yields departments in parent-before-child order.
type DepartmentLister interface {
	ListActiveOrdered(ctx context.Context) ([]directory.Department, error)
}

// AuditRecorder appends run records and reads the last sync entry.
type AuditRecorder interface {
	RecordSync(ctx context.Context, operatorID string, stats audit.RunStats, errorMessages []string) (int64, error)
	LastSync(ctx context.Context) (*audit.Entry, error)
}

// Summary is the public outcome of one sync run.
type Summary struct {
	RunID        string   `json:"runId"`
	Processed    int      `json:"processedCount"`
	Errors       int      `json:"errorCount"`
	DurationMs   int64    `json:"durationMs"`
	ErrorSamples []string `json:"errors"`
	Partial      bool     `json:"partial,omitempty"`
}

// Status is the pure-read view of the last run plus current inherited count.
type Status struct {
	LastSyncTime             *time.Time      `json:"lastSyncTime"`
	LastSyncDetails          *audit.RunStats `json:"lastSyncDetails"`
	InheritedPermissionCount int64           `json:"inheritedPermissionCount"`
}

// OrchestratorConfig tunes run behavior.
type OrchestratorConfig struct {
	LeaseTTL     time.Duration
	LevelWorkers int
	SoftDeadline time.Duration
}

// Orchestrator is the public entry point for propagation runs. It holds the
// single-writer lease for the duration of a run and records every run in the
// audit log exactly once.
type Orchestrator struct {
	departments DepartmentLister
	store       grants.Store
	auditor     AuditRecorder
	redis       *redis.Client
	propagator  *Propagator
	logger      *slog.Logger
	metrics     *observability.Metrics
	cfg         OrchestratorConfig

	countGroup singleflight.Group
}

// NewOrchestrator builds an Orchestrator instance.
func NewOrchestrator(departments DepartmentLister, store grants.Store, auditor AuditRecorder, redisClient *redis.Client, logger *slog.Logger, metrics *observability.Metrics, cfg OrchestratorConfig) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.LevelWorkers <= 0 {
		cfg.LevelWorkers = 4
	}
	return &Orchestrator{
		departments: departments,
		store:       store,
		auditor:     auditor,
		redis:       redisClient,
		propagator:  NewPropagator(store, logger),
		logger:      logger,
		metrics:     metrics,
		cfg:         cfg,
	}
}

// Sync executes one complete propagation run. Concurrent invocation is
// rejected with ErrSyncRunning; callers must not retry blindly.
func (o *Orchestrator) Sync(ctx context.Context, operatorID string) (Summary, error) {
	if operatorID == "" {
		return Summary{}, fmt.Errorf("%w: operator id required", httpx.ErrValidation)
	}

	lease := NewLease(o.redis, shared.PermissionSyncLockKey(), o.cfg.LeaseTTL)
	if err := lease.Acquire(ctx); err != nil {
		if errors.Is(err, ErrSyncRunning) {
			o.metrics.ObserveSyncRun("contended", 0, 0, 0)
		}
		return Summary{}, err
	}
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := lease.Release(releaseCtx); err != nil {
			o.logger.Warn("release sync lease", slog.Any("error", err))
		}
	}()

	runID := uuid.NewString()
	started := time.Now()
	o.logger.Info("permission sync started",
		slog.String("run", runID), slog.String("operator", operatorID))

	departments, err := o.departments.ListActiveOrdered(ctx)
	if err != nil {
		// Fatal: nothing was written. Record the failed run and surface a
		// single top-level failure.
		duration := time.Since(started)
		fatal := fmt.Errorf("sync: list departments: %w", err)
		o.recordRun(ctx, operatorID, runID, Result{Errors: 1, Messages: []string{fatal.Error()}}, duration)
		o.metrics.ObserveSyncRun("fatal", 0, 1, duration)
		return Summary{RunID: runID, DurationMs: duration.Milliseconds(), Errors: 1, ErrorSamples: []string{fatal.Error()}}, fatal
	}

	forest := directory.BuildForest(departments)
	result := Result{}
	for _, issue := range forest.Issues() {
		result.Errors++
		result.Messages = append(result.Messages, issue.String())
	}

	runResult, runErr := o.propagator.Run(ctx, forest, Options{
		LevelWorkers: o.cfg.LevelWorkers,
		SoftDeadline: o.cfg.SoftDeadline,
		AfterLevel: func(ctx context.Context, level int) error {
			return lease.Extend(ctx)
		},
	})
	result.Processed = runResult.Processed
	result.Errors += runResult.Errors
	result.Writes = runResult.Writes
	result.Unchanged = runResult.Unchanged
	result.Partial = runResult.Partial
	result.Messages = append(result.Messages, runResult.Messages...)

	duration := time.Since(started)
	outcome := "ok"
	switch {
	case runErr != nil:
		outcome = "fatal"
		result.Messages = append(result.Messages, runErr.Error())
	case result.Partial:
		outcome = "partial"
	}
	o.recordRun(ctx, operatorID, runID, result, duration)
	o.metrics.ObserveSyncRun(outcome, result.Processed, result.Errors, duration)

	summary := Summary{
		RunID:        runID,
		Processed:    result.Processed,
		Errors:       result.Errors,
		DurationMs:   duration.Milliseconds(),
		ErrorSamples: sampleErrors(result.Messages),
		Partial:      result.Partial,
	}
	o.logger.Info("permission sync finished",
		slog.String("run", runID),
		slog.String("outcome", outcome),
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.Errors),
		slog.Int("writes", result.Writes),
		slog.Int("unchanged", result.Unchanged),
		slog.Duration("duration", duration))
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

func (o *Orchestrator) recordRun(ctx context.Context, operatorID, runID string, result Result, duration time.Duration) {
	stats := audit.RunStats{
		RunID:      runID,
		Processed:  result.Processed,
		Errors:     result.Errors,
		DurationMs: duration.Milliseconds(),
		Partial:    result.Partial,
	}
	if _, err := o.auditor.RecordSync(context.WithoutCancel(ctx), operatorID, stats, result.Messages); err != nil {
		o.logger.Error("record sync audit entry", slog.Any("error", err))
	}
}

func sampleErrors(messages []string) []string {
	if len(messages) <= audit.MaxExposedErrors {
		return messages
	}
	return messages[:audit.MaxExposedErrors]
}

// Status reports the last recorded run and the current inherited row count.
// It is a pure read and may run concurrently with an in-flight sync.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	last, err := o.auditor.LastSync(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("sync: read last run: %w", err)
	}

	// The aggregate count scans the grants table; coalesce concurrent
	// status calls into one query.
	countAny, err, _ := o.countGroup.Do("inherited_count", func() (any, error) {
		return o.store.CountInherited(ctx)
	})
	if err != nil {
		return Status{}, fmt.Errorf("sync: count inherited: %w", err)
	}

	status := Status{InheritedPermissionCount: countAny.(int64)}
	if last != nil {
		at := last.At
		status.LastSyncTime = &at
		stats := last.Stats
		status.LastSyncDetails = &stats
	}
	return status, nil
}
