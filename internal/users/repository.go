package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/berties-books/bookshop/internal/platform/db"
)

// Repository is the PostgreSQL backed user directory. Uniqueness of username and
// email is enforced by the users_username_key and users_email_key indexes.
type Repository struct {
	conn db.DBTX
}

// NewRepository constructs a repository over the given connection.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{conn: conn}
}

const userColumns = `id, username, first, last, email, hashed_password, created_at`

// FindByUsername fetches a user by exact username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.First, &u.Last, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: find by username: %w", err)
	}
	return &u, nil
}

// ExistsByUsername reports whether the username is taken. Advisory only; Create is
// the authority.
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("users: exists by username: %w", err)
	}
	return exists, nil
}

// Create inserts a user and returns it with its assigned identifier.
func (r *Repository) Create(ctx context.Context, in NewUser) (*User, error) {
	u := User{
		Username:     in.Username,
		First:        in.First,
		Last:         in.Last,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
	}
	err := r.conn.QueryRow(ctx,
		`INSERT INTO users (username, first, last, email, hashed_password) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		in.Username, in.First, in.Last, in.Email, in.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w (%s)", ErrDuplicateKey, db.ConstraintName(err))
		}
		return nil, fmt.Errorf("users: create: %w", err)
	}
	return &u, nil
}

// List returns every user in insertion order without credential hashes.
func (r *Repository) List(ctx context.Context) ([]Listing, error) {
	rows, err := r.conn.Query(ctx, `SELECT username, first, last, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.Username, &l.First, &l.Last, &l.Email); err != nil {
			return nil, fmt.Errorf("users: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list rows: %w", err)
	}
	return listings, nil
}
