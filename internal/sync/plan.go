package sync

import "github.com/orgsync/orgsync/internal/grants"

// Plan is the change set for one department computed by a propagation step.
// Upserts carry the inherited rows to create or update, Deletes the
// permission ids whose inherited rows must go, Unchanged the number of rows
// skipped because the stored values already match.
type Plan struct {
	Upserts   []grants.Grant
	Deletes   []int64
	Unchanged int
}

// IsEmpty reports whether applying the plan would write nothing.
func (p Plan) IsEmpty() bool {
	return len(p.Upserts) == 0 && len(p.Deletes) == 0
}

// BuildPlan computes the inherited-grant change set for one department from
// its parent's resolved grants, its own direct grants, and its currently
// stored inherited rows.
//
// A permission granted directly on the department is overridden: no inherited
// row may survive for it. Everything else in the parent's resolved set flows
// down with priority reduced by one hop and the origin preserved back to the
// direct-grant holder, so audit can always trace a grant to its source.
// Stored rows that match the computed values are skipped, keeping a re-run
// free of writes. Stored inherited rows outside the expected set are deleted;
// that covers upstream revocation, re-parenting, and template changes.
func BuildPlan(deptID int64, parentResolved, direct, existingInherited []grants.Grant) Plan {
	overridden := make(map[int64]struct{}, len(direct))
	for _, g := range direct {
		overridden[g.PermissionID] = struct{}{}
	}

	existing := make(map[int64]grants.Grant, len(existingInherited))
	for _, g := range existingInherited {
		existing[g.PermissionID] = g
	}

	var plan Plan
	expected := make(map[int64]struct{}, len(parentResolved))
	for _, src := range parentResolved {
		if _, ok := overridden[src.PermissionID]; ok {
			continue
		}
		expected[src.PermissionID] = struct{}{}
		origin := src.Origin()
		next := grants.Grant{
			DepartmentID:  deptID,
			PermissionID:  src.PermissionID,
			Granted:       src.Granted,
			Priority:      src.Priority - 1,
			InheritedFrom: &origin,
			Conditions:    src.Conditions,
		}
		if current, ok := existing[src.PermissionID]; ok && current.SameValues(next) {
			plan.Unchanged++
			continue
		}
		plan.Upserts = append(plan.Upserts, next)
	}

	for permID := range existing {
		if _, ok := expected[permID]; !ok {
			plan.Deletes = append(plan.Deletes, permID)
		}
	}
	return plan
}
