package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/cryptox"
	"github.com/authcorehq/authcore/pkg/idx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrInvalidStatus = errors.New("invalid status")
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// ListUsers returns one page of the directory plus the total match count.
func (s *UserService) ListUsers(ctx context.Context, p store.ListUsersParams) ([]domain.User, int, error) {
	return s.Store.Users().ListUsers(ctx, p)
}

// CreateUser registers a new directory entry. When password is empty a
// random one is generated; either way the plaintext is returned once so the
// caller can hand it to the user, and only the hash is stored.
func (s *UserService) CreateUser(
	ctx context.Context,
	name, email, password, status string,
) (domain.User, string, error) {
	l := slogx.FromContext(ctx)

	if status == "" {
		status = string(domain.UserStatusActive)
	}
	if !domain.ValidUserStatus(status) {
		return domain.User{}, "", ErrInvalidStatus
	}

	if password == "" {
		generated, err := cryptox.GeneratePassword()
		if err != nil {
			return domain.User{}, "", err
		}
		password = generated
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Status:       domain.UserStatus(status),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", ErrEmailTaken
		}
		return domain.User{}, "", err
	}

	l.Info("user created", "user_id", u.ID)
	return u, password, nil
}

// UpdateUser mutates name, email, and status.
func (s *UserService) UpdateUser(ctx context.Context, userID, name, email, status string) (domain.User, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if name != "" {
		u.Name = strings.TrimSpace(name)
	}
	if email != "" {
		u.Email = strings.TrimSpace(email)
	}
	if status != "" {
		if !domain.ValidUserStatus(status) {
			return domain.User{}, ErrInvalidStatus
		}
		u.Status = domain.UserStatus(status)
	}
	u.UpdatedAt = time.Now().UTC()

	if err := s.Store.Users().UpdateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// UpdatePassword replaces the stored hash, stamps passwordLastChanged, and
// revokes every live refresh token the user holds so stale sessions cannot
// outlive the old credential.
func (s *UserService) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	l := slogx.FromContext(ctx)

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash, now); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllLiveForUser(ctx, userID, now)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	l.Info("password updated", "user_id", userID)
	return nil
}

// DeleteUser removes the directory entry. Role and application assignments
// and refresh tokens cascade in the store.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	err := s.Store.Users().DeleteUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
