package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/berties-books/bookshop/internal/platform/db"
)

// Repository is the append-only PostgreSQL audit table.
type Repository struct {
	conn db.DBTX
}

// NewRepository constructs a repository over the given connection.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{conn: conn}
}

// Append inserts one entry. Re-appending an entry with the same ID is a no-op so a
// redelivered queue task cannot duplicate it.
func (r *Repository) Append(ctx context.Context, e Entry) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO audit (id, subject, action, success, details, created_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		e.ID, optionalText(e.Subject), string(e.Action), e.Success, e.Details, e.At,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent returns at most limit entries, newest first. limit is clamped to
// (0, MaxRecentLimit]; a non-positive limit selects DefaultRecentLimit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	rows, err := r.conn.Query(ctx,
		`SELECT id, created_at, subject, action, success, details FROM audit ORDER BY created_at DESC, id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e       Entry
			subject pgtype.Text
			action  string
		)
		if err := rows.Scan(&e.ID, &e.At, &subject, &action, &e.Success, &e.Details); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Subject = subject.String
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return entries, nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
