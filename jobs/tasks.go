package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionSync triggers one full propagation run.
	TaskPermissionSync = "permission:sync"
	// TaskConflictScan runs conflict detection independently of a sync.
	TaskConflictScan = "permission:conflict_scan"
)

// PermissionSyncPayload identifies the operator recorded for the run.
type PermissionSyncPayload struct {
	OperatorID string `json:"operatorId"`
}

// NewPermissionSyncTask constructs the Asynq task for one sync run.
func NewPermissionSyncTask(operatorID string) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionSyncPayload{OperatorID: operatorID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionSync, data), nil
}

// NewConflictScanTask constructs the Asynq task for a conflict scan.
func NewConflictScanTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskConflictScan, nil), nil
}
