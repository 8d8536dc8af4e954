package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// UserService resolves external identities into internal user records.
type UserService struct {
	store *store.Store
	now   func() time.Time
}

// NewUserService creates a new user directory.
func NewUserService(s *store.Store) *UserService {
	return &UserService{store: s, now: time.Now}
}

// FindOrCreate returns the user for p.Subject, creating it on first sign-in.
// Profile fields are always overwritten with the provider's latest values.
func (s *UserService) FindOrCreate(ctx context.Context, p domain.ExternalProfile) (*domain.User, error) {
	p.Subject = strings.TrimSpace(p.Subject)
	if p.Subject == "" {
		return nil, port.ValidationErrors{{Index: -1, Field: "subject", Reason: "required"}}
	}

	_, err := s.store.GetUserBySubject(ctx, p.Subject)
	switch {
	case err == nil:
		return s.store.UpdateUserProfile(ctx, p, s.now())
	case !errors.Is(err, port.ErrUserNotFound):
		return nil, fmt.Errorf("find user: %w", err)
	}

	user, err := s.store.InsertUser(ctx, p, s.now())
	if errors.Is(err, port.ErrDuplicate) {
		// Lost a race with a concurrent first sign-in.
		return s.store.UpdateUserProfile(ctx, p, s.now())
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser returns a user by internal ID.
func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.GetUserByID(ctx, id)
}
