package grants

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orgsync/orgsync/internal/platform/db"
	"github.com/orgsync/orgsync/internal/platform/httpx"
)

// Repository provides PostgreSQL backed grant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const grantColumns = `department_id, permission_id, granted, priority, inherited_from, conditions`

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	defer rows.Close()
	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.DepartmentID, &g.PermissionID, &g.Granted, &g.Priority, &g.InheritedFrom, &g.Conditions); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DirectGrants returns the grants set explicitly on the department.
func (r *Repository) DirectGrants(ctx context.Context, deptID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grantColumns+` FROM department_grants WHERE department_id = $1 AND inherited_from IS NULL`, deptID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// InheritedGrants returns the rows previously written by propagation.
func (r *Repository) InheritedGrants(ctx context.Context, deptID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grantColumns+` FROM department_grants WHERE department_id = $1 AND inherited_from IS NOT NULL`, deptID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ResolvedGrants returns direct union inherited with direct shadowing
// inherited per permission, ordered by priority descending.
func (r *Repository) ResolvedGrants(ctx context.Context, deptID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantColumns+` FROM (
			SELECT DISTINCT ON (permission_id) `+grantColumns+`
			FROM department_grants
			WHERE department_id = $1
			ORDER BY permission_id, (inherited_from IS NULL) DESC
		) resolved
		ORDER BY priority DESC, permission_id`, deptID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ApplyDepartment applies one department's delete-stale-then-upsert batch in
// a single transaction.
func (r *Repository) ApplyDepartment(ctx context.Context, deptID int64, upserts []Grant, deletePermIDs []int64) error {
	if len(upserts) == 0 && len(deletePermIDs) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if len(deletePermIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM department_grants WHERE department_id = $1 AND permission_id = ANY($2) AND inherited_from IS NOT NULL`, deptID, deletePermIDs); err != nil {
				return err
			}
		}
		for _, g := range upserts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO department_grants (department_id, permission_id, granted, priority, inherited_from, conditions)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (department_id, permission_id) WHERE inherited_from IS NOT NULL
				DO UPDATE SET granted = EXCLUDED.granted, priority = EXCLUDED.priority, inherited_from = EXCLUDED.inherited_from, conditions = EXCLUDED.conditions, updated_at = NOW()`,
				deptID, g.PermissionID, g.Granted, g.Priority, g.InheritedFrom, g.Conditions); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountInherited returns the total number of inherited rows.
func (r *Repository) CountInherited(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM department_grants WHERE inherited_from IS NOT NULL`).Scan(&count)
	return count, err
}

// Permission returns reference data for display purposes.
func (r *Repository) Permission(ctx context.Context, permID int64) (PermissionDefinition, error) {
	var def PermissionDefinition
	err := r.pool.QueryRow(ctx, `SELECT id, name, category FROM permissions WHERE id = $1`, permID).Scan(&def.ID, &def.Name, &def.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionDefinition{}, httpx.ErrNotFound
		}
		return PermissionDefinition{}, err
	}
	return def, nil
}
