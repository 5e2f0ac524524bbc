package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/orgsync/orgsync/internal/conflicts"
	syncengine "github.com/orgsync/orgsync/internal/sync"
)

// SyncRunner is the subset of the orchestrator the worker needs.
type SyncRunner interface {
	Sync(ctx context.Context, operatorID string) (syncengine.Summary, error)
}

// ConflictScanner runs one detection pass.
type ConflictScanner interface {
	Scan(ctx context.Context) ([]conflicts.Record, error)
}

// NewPermissionSyncHandler processes TaskPermissionSync tasks. A lease held
// by another run is a normal outcome for a scheduled tick: the tick is
// skipped, never retried.
func NewPermissionSyncHandler(runner SyncRunner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PermissionSyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OperatorID == "" {
			payload.OperatorID = "scheduler"
		}
		summary, err := runner.Sync(ctx, payload.OperatorID)
		if err != nil {
			if errors.Is(err, syncengine.ErrSyncRunning) {
				logger.Info("scheduled sync skipped, run in progress")
				return nil
			}
			return err
		}
		logger.Info("scheduled sync finished",
			slog.String("run", summary.RunID),
			slog.Int("processed", summary.Processed),
			slog.Int("errors", summary.Errors))
		return nil
	}
}

// NewConflictScanHandler processes TaskConflictScan tasks.
func NewConflictScanHandler(scanner ConflictScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		records, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}
		logger.Info("scheduled conflict scan finished", slog.Int("findings", len(records)))
		return nil
	}
}
