package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost matches the ten salt rounds existing hashes were created with.
const DefaultBcryptCost = 10

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. Out-of-range costs fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	return string(hashed), nil
}

// Verify compares password against a bcrypt hash.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		// No stored hash can match a password longer than bcrypt accepts.
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrHashing, err)
	}
}

// CredentialHasher is the context-aware hasher the Service calls.
type CredentialHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BoundedHasher caps how many hash operations run at once so CPU-bound bcrypt work
// cannot starve other requests. Waiting for a slot honours ctx; a started hash runs
// to completion.
type BoundedHasher struct {
	inner PasswordHasher
	slots *semaphore.Weighted
}

// NewBoundedHasher wraps inner. limit <= 0 selects GOMAXPROCS.
func NewBoundedHasher(inner PasswordHasher, limit int) *BoundedHasher {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &BoundedHasher{inner: inner, slots: semaphore.NewWeighted(int64(limit))}
}

// Hash hashes password once a slot is free.
func (b *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for hasher: %w", ErrHashing, err)
	}
	defer b.slots.Release(1)
	return b.inner.Hash(password)
}

// Verify checks password once a slot is free.
func (b *BoundedHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("%w: waiting for hasher: %w", ErrHashing, err)
	}
	defer b.slots.Release(1)
	return b.inner.Verify(password, hash)
}
