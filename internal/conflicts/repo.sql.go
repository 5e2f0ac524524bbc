package conflicts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orgsync/orgsync/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for conflict records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, department_id, permission_id, kind, conflicting_values, proposal, severity, status, detected_at, resolved_at, resolved_by`

// UpsertOpen inserts a finding or refreshes the open record for the same
// department, permission, and kind instead of duplicating it.
func (r *Repository) UpsertOpen(ctx context.Context, finding Finding) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conflict_records (id, department_id, permission_id, kind, conflicting_values, proposal, severity, status, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', NOW())
		ON CONFLICT (department_id, permission_id, kind) WHERE status = 'pending'
		DO UPDATE SET conflicting_values = EXCLUDED.conflicting_values, proposal = EXCLUDED.proposal, severity = EXCLUDED.severity, detected_at = NOW()
		RETURNING `+recordColumns,
		uuid.New(), finding.DepartmentID, finding.PermissionID, finding.Kind, finding.ConflictingValues, finding.Proposal, finding.Severity)
	return scanRecord(row)
}

// Filters narrows conflict listings.
type Filters struct {
	Status   Status
	Severity Severity
}

// List returns records newest first.
func (r *Repository) List(ctx context.Context, filters Filters) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM conflict_records
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR severity = $2)
		ORDER BY detected_at DESC, id`,
		string(filters.Status), string(filters.Severity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM conflict_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, httpx.ErrNotFound
		}
		return Record{}, err
	}
	return record, nil
}

// Close transitions a pending record to resolved or dismissed.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, status Status, resolvedBy string) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conflict_records
		SET status = $2, resolved_at = NOW(), resolved_by = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+recordColumns,
		id, string(status), resolvedBy)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, httpx.ErrNotFound
		}
		return Record{}, err
	}
	return record, nil
}

// CountOpenBySeverity returns pending record counts keyed by severity.
func (r *Repository) CountOpenBySeverity(ctx context.Context) (map[Severity]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT severity, COUNT(*) FROM conflict_records WHERE status = 'pending' GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Severity]int)
	for rows.Next() {
		var severity Severity
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	var resolvedAt *time.Time
	if err := row.Scan(&record.ID, &record.DepartmentID, &record.PermissionID, &record.Kind,
		&record.ConflictingValues, &record.Proposal, &record.Severity, &record.Status,
		&record.DetectedAt, &resolvedAt, &record.ResolvedBy); err != nil {
		return Record{}, err
	}
	record.ResolvedAt = resolvedAt
	return record, nil
}
