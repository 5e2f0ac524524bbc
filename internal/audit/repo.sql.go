package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides append-only PostgreSQL persistence for audit entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts an entry and returns its id.
func (r *Repository) Append(ctx context.Context, entry Entry) (int64, error) {
	stats, err := json.Marshal(entry.Stats)
	if err != nil {
		return 0, err
	}
	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return 0, err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_entries (operation_type, operator_id, occurred_at, stats, errors)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		entry.OperationType, entry.OperatorID, at, stats, errorsJSON).Scan(&id)
	return id, err
}

// LastByType returns the most recent entry for an operation type, or nil.
func (r *Repository) LastByType(ctx context.Context, operationType string) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, operation_type, operator_id, occurred_at, stats, errors
		FROM audit_entries
		WHERE operation_type = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1`, operationType)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// HistoryFilters narrows history listings.
type HistoryFilters struct {
	OperationType string
	OperatorID    string
	From          time.Time
	To            time.Time
}

// History returns entries newest first. Callers pass limit one past the page
// size to probe for a next page.
func (r *Repository) History(ctx context.Context, filters HistoryFilters, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, operation_type, operator_id, occurred_at, stats, errors
		FROM audit_entries
		WHERE ($1 = '' OR operation_type = $1)
		  AND ($2 = '' OR operator_id = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $5 OFFSET $6`,
		filters.OperationType, filters.OperatorID, nullableTime(filters.From), nullableTime(filters.To), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var stats, errorsJSON []byte
	if err := row.Scan(&entry.ID, &entry.OperationType, &entry.OperatorID, &entry.At, &stats, &errorsJSON); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(stats, &entry.Stats); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(errorsJSON, &entry.Errors); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
