package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/idx"
)

var (
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleTaken    = errors.New("role name already in use")
)

type RolesService struct {
	Store store.Store
}

// GetRoleByID fetches a role by its ID.
func (s *RolesService) GetRoleByID(ctx context.Context, roleID string) (domain.Role, error) {
	r, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, ErrRoleNotFound
	}
	return r, err
}

// ListAll returns all roles in the system.
func (s *RolesService) ListAll(ctx context.Context) ([]domain.Role, error) {
	return s.Store.Roles().ListRoles(ctx)
}

// CreateRole registers a new role.
func (s *RolesService) CreateRole(ctx context.Context, name, description string, permissions []string) (domain.Role, error) {
	now := time.Now().UTC()
	r := domain.Role{
		ID:          idx.New().String(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Permissions: normalizeList(permissions, false),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Store.Roles().CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Role{}, ErrRoleTaken
		}
		return domain.Role{}, err
	}
	return r, nil
}

// DeleteRole removes a role; assignments cascade in the store.
func (s *RolesService) DeleteRole(ctx context.Context, roleID string) error {
	err := s.Store.Roles().DeleteRole(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoleNotFound
	}
	return err
}

// ListUserRoles returns the user's role assignments with names resolved.
func (s *RolesService) ListUserRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	return s.Store.Roles().ListUserRoles(ctx, userID)
}

// AssignRole grants the role to the user. The change reaches access tokens
// at the next login or refresh; outstanding tokens keep their snapshot.
func (s *RolesService) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.GetRoleByID(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.Store.Roles().AssignRole(ctx, userID, roleID, time.Now().UTC())
}

// UnassignRole removes the grant.
func (s *RolesService) UnassignRole(ctx context.Context, userID, roleID string) error {
	err := s.Store.Roles().UnassignRole(ctx, userID, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoleNotFound
	}
	return err
}
