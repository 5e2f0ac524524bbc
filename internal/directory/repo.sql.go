package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed read access to departments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveOrdered returns active departments sorted ascending by level so
// every department appears after all of its ancestors. Inactive departments
// are excluded entirely: they are neither processed nor used as sources.
func (r *Repository) ListActiveOrdered(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, parent_id, level, path FROM departments WHERE is_active ORDER BY level, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []Department
	for rows.Next() {
		dept := Department{IsActive: true}
		if err := rows.Scan(&dept.ID, &dept.ParentID, &dept.Level, &dept.Path); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return departments, nil
}
