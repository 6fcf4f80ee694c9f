package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/berties-books/bookshop/internal/platform/httpx"
)

var (
	// ErrValidation marks malformed or missing input. Returned as *ValidationError.
	ErrValidation = fmt.Errorf("auth: %w", httpx.ErrValidation)
	// ErrDuplicateUser marks a registration whose username or email is taken.
	ErrDuplicateUser = fmt.Errorf("%w: username or email already registered", httpx.ErrDuplicate)
	// ErrInvalidCredentials is the single error for unknown users and wrong passwords.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", httpx.ErrUnauthorized)
	// ErrHashing marks a credential hasher failure. Not user-correctable.
	ErrHashing = errors.New("auth: credential hashing failed")
	// ErrStorage marks a failure of the user directory or session store.
	ErrStorage = errors.New("auth: storage failure")
)

// ValidationError carries one message per offending form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors exposes the per-field messages to the HTTP layer.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}
