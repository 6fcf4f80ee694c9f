package audit

import (
	"context"
	"fmt"
)

const (
	// DefaultRecentLimit is used when the caller does not ask for a size.
	DefaultRecentLimit = 100
	// MaxRecentLimit caps a single history read.
	MaxRecentLimit = 500
)

// Reader is the query side of the audit table.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Service serves audit history.
type Service struct {
	repo         Reader
	defaultLimit int
}

// NewService builds the history service. defaultLimit <= 0 selects DefaultRecentLimit.
func NewService(repo Reader, defaultLimit int) *Service {
	if defaultLimit <= 0 || defaultLimit > MaxRecentLimit {
		defaultLimit = DefaultRecentLimit
	}
	return &Service{repo: repo, defaultLimit: defaultLimit}
}

// Recent returns the newest entries first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.repo.Recent(ctx, limit)
}
