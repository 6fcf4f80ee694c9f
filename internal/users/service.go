package users

import (
	"context"
)

// Lister is the read side used by the listing endpoint.
type Lister interface {
	List(ctx context.Context) ([]Listing, error)
}

// Service handles user listing.
type Service struct {
	repo Lister
}

// NewService builds Service instance.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users in registration order.
func (s *Service) ListUsers(ctx context.Context) ([]Listing, error) {
	return s.repo.List(ctx)
}
