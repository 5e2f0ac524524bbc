package audit

import "time"

// Operation types recorded by the engine.
const (
	OpPermissionSync     = "permission_sync"
	OpConflictResolution = "conflict_resolution"
)

const (
	// maxStoredErrors caps error messages persisted per entry.
	maxStoredErrors = 10
	// MaxExposedErrors caps error messages returned to API consumers.
	MaxExposedErrors = 5
)

// RunStats summarizes one sync run inside an audit entry.
type RunStats struct {
	RunID      string `json:"runId,omitempty"`
	Processed  int    `json:"processedCount"`
	Errors     int    `json:"errorCount"`
	DurationMs int64  `json:"durationMs"`
	Partial    bool   `json:"partial,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Entry is one immutable audit record. Entries are appended once per sync
// run and once per conflict resolution, and never mutated or deleted.
type Entry struct {
	ID            int64
	OperationType string
	OperatorID    string
	At            time.Time
	Stats         RunStats
	Errors        []string
}

// ExposedErrors returns the externally visible slice of error messages.
func (e Entry) ExposedErrors() []string {
	if len(e.Errors) <= MaxExposedErrors {
		return e.Errors
	}
	return e.Errors[:MaxExposedErrors]
}

// capErrors truncates messages to the storage cap.
func capErrors(messages []string) []string {
	if len(messages) <= maxStoredErrors {
		return messages
	}
	return messages[:maxStoredErrors]
}
