package users

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no user matched the lookup.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicateKey indicates the storage layer rejected a username or email that
	// already exists.
	ErrDuplicateKey = errors.New("users: duplicate key")
)

// User is a registered account. PasswordHash never leaves the directory in listings
// and is not serialised.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	First        string    `json:"first"`
	Last         string    `json:"last"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser carries the already validated and hashed fields for Create.
type NewUser struct {
	Username     string
	First        string
	Last         string
	Email        string
	PasswordHash string
}

// Listing is the public projection returned by List.
type Listing struct {
	Username string `json:"username"`
	First    string `json:"first"`
	Last     string `json:"last"`
	Email    string `json:"email"`
}
