package grants

import "context"

// Store abstracts per-department grant persistence. The propagator and the
// conflict detector depend on this interface, not on PostgreSQL directly.
type Store interface {
	// DirectGrants returns the grants set explicitly on the department.
	DirectGrants(ctx context.Context, deptID int64) ([]Grant, error)
	// InheritedGrants returns the rows previously written by propagation.
	InheritedGrants(ctx context.Context, deptID int64) ([]Grant, error)
	// ResolvedGrants returns the department's propagation source set: direct
	// union inherited with direct shadowing inherited per permission, ordered
	// by priority descending. Revoking grants (granted=false) are included so
	// revocations flow down the tree.
	ResolvedGrants(ctx context.Context, deptID int64) ([]Grant, error)
	// ApplyDepartment applies one department's batch as a single atomic unit:
	// upserts of inherited rows plus deletion of inherited rows for the given
	// permission ids.
	ApplyDepartment(ctx context.Context, deptID int64, upserts []Grant, deletePermIDs []int64) error
	// CountInherited returns the total number of inherited rows.
	CountInherited(ctx context.Context) (int64, error)
	// Permission returns reference data for display purposes.
	Permission(ctx context.Context, permID int64) (PermissionDefinition, error)
}
