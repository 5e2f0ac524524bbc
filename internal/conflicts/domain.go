package conflicts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how a conflict must be handled.
type Severity string

const (
	// SeverityLow marks conflicts that re-running cleanup resolves.
	SeverityLow Severity = "low"
	// SeverityHigh marks conflicts that change effective access for a
	// subtree and require acknowledgment.
	SeverityHigh Severity = "high"
)

// Status is the lifecycle state of a conflict record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Kind names the detected inconsistency.
type Kind string

const (
	// KindStaleInherited marks an inherited row whose source permission no
	// longer flows from any ancestor.
	KindStaleInherited Kind = "stale_inherited"
	// KindRevokingOverride marks a direct revocation shadowing a granted
	// flow while descendants still hold inherited granted copies.
	KindRevokingOverride Kind = "revoking_override"
)

// Resolution actions accepted by the resolve endpoint.
const (
	ActionApplyProposal = "apply_proposal"
	ActionDismiss       = "dismiss"
)

// Record is one detected inconsistency between expected and stored grant
// state. Records are created by the detector and closed by an admin action.
type Record struct {
	ID                uuid.UUID
	DepartmentID      int64
	PermissionID      int64
	Kind              Kind
	ConflictingValues json.RawMessage
	Proposal          string
	Severity          Severity
	Status            Status
	DetectedAt        time.Time
	ResolvedAt        *time.Time
	ResolvedBy        string
}

// Finding is a freshly detected conflict before persistence.
type Finding struct {
	DepartmentID      int64
	PermissionID      int64
	Kind              Kind
	ConflictingValues json.RawMessage
	Proposal          string
	Severity          Severity
}
