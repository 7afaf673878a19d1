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
	ErrApplicationNotFound = errors.New("application not found")
	ErrClientIDTaken       = errors.New("client id already in use")
)

type ApplicationService struct {
	Store store.Store
}

// ApplicationParams carries the mutable registry fields.
type ApplicationParams struct {
	Name            string
	RedirectURIs    []string
	CORSOrigins     []string
	AccessTokenTTL  int // minutes, 0 keeps the service default
	RefreshTokenTTL int // days, 0 keeps the service default
	Status          string
}

// GetApplicationByID fetches a registry entry by id.
func (s *ApplicationService) GetApplicationByID(ctx context.Context, id string) (domain.Application, error) {
	a, err := s.Store.Applications().GetApplicationByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Application{}, ErrApplicationNotFound
	}
	return a, err
}

// ListApplications returns one registry page plus the total match count.
func (s *ApplicationService) ListApplications(ctx context.Context, p store.ListApplicationsParams) ([]domain.Application, int, error) {
	return s.Store.Applications().ListApplications(ctx, p)
}

// CreateApplication registers a new client application. The client id is
// generated and immutable afterwards; the plaintext secret is returned once
// and only its hash is stored.
func (s *ApplicationService) CreateApplication(ctx context.Context, p ApplicationParams) (domain.Application, string, error) {
	l := slogx.FromContext(ctx)

	status := p.Status
	if status == "" {
		status = string(domain.ApplicationStatusActive)
	}
	if !domain.ValidApplicationStatus(status) {
		return domain.Application{}, "", ErrInvalidStatus
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Application{}, "", err
	}
	secretHash, err := cryptox.HashPassword(secret)
	if err != nil {
		return domain.Application{}, "", err
	}

	now := time.Now().UTC()
	a := domain.Application{
		ID:               idx.New().String(),
		Name:             strings.TrimSpace(p.Name),
		ClientID:         idx.New().String(),
		ClientSecretHash: secretHash,
		RedirectURIs:     normalizeList(p.RedirectURIs, false),
		CORSOrigins:      normalizeList(p.CORSOrigins, true),
		AccessTokenTTL:   p.AccessTokenTTL,
		RefreshTokenTTL:  p.RefreshTokenTTL,
		Status:           domain.ApplicationStatus(status),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.Store.Applications().CreateApplication(ctx, a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Application{}, "", ErrClientIDTaken
		}
		return domain.Application{}, "", err
	}

	l.Info("application created", "application_id", a.ID, "client_id", a.ClientID)
	return a, secret, nil
}

// UpdateApplication mutates the registry entry. The client id and secret
// hash are untouched; use RotateSecret for the latter.
func (s *ApplicationService) UpdateApplication(ctx context.Context, id string, p ApplicationParams) (domain.Application, error) {
	a, err := s.GetApplicationByID(ctx, id)
	if err != nil {
		return domain.Application{}, err
	}

	if p.Name != "" {
		a.Name = strings.TrimSpace(p.Name)
	}
	if p.RedirectURIs != nil {
		a.RedirectURIs = normalizeList(p.RedirectURIs, false)
	}
	if p.CORSOrigins != nil {
		a.CORSOrigins = normalizeList(p.CORSOrigins, true)
	}
	if p.AccessTokenTTL > 0 {
		a.AccessTokenTTL = p.AccessTokenTTL
	}
	if p.RefreshTokenTTL > 0 {
		a.RefreshTokenTTL = p.RefreshTokenTTL
	}
	if p.Status != "" {
		if !domain.ValidApplicationStatus(p.Status) {
			return domain.Application{}, ErrInvalidStatus
		}
		a.Status = domain.ApplicationStatus(p.Status)
	}
	a.UpdatedAt = time.Now().UTC()

	if err := s.Store.Applications().UpdateApplication(ctx, a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Application{}, ErrApplicationNotFound
		}
		return domain.Application{}, err
	}
	return a, nil
}

// RotateSecret replaces the client secret and returns the new plaintext
// exactly once. Existing tokens are unaffected.
func (s *ApplicationService) RotateSecret(ctx context.Context, id string) (string, error) {
	l := slogx.FromContext(ctx)

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	secretHash, err := cryptox.HashPassword(secret)
	if err != nil {
		return "", err
	}

	if err := s.Store.Applications().UpdateClientSecretHash(ctx, id, secretHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrApplicationNotFound
		}
		return "", err
	}

	l.Info("client secret rotated", "application_id", id)
	return secret, nil
}

// DeleteApplication soft-deletes the registry entry; the row stays behind
// audit joins and its origins stop resolving.
func (s *ApplicationService) DeleteApplication(ctx context.Context, id string) error {
	err := s.Store.Applications().DeleteApplication(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrApplicationNotFound
	}
	return err
}

// AssignUser grants the user access to the application. Assigning twice is
// a no-op.
func (s *ApplicationService) AssignUser(ctx context.Context, userID, applicationID string) error {
	if _, err := s.GetApplicationByID(ctx, applicationID); err != nil {
		return err
	}
	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.Store.Applications().AssignUser(ctx, userID, applicationID, time.Now().UTC())
}

// UnassignUser removes the grant. The user's live refresh tokens for the
// application are revoked so the revoked grant takes effect at the next
// token refresh at the latest.
func (s *ApplicationService) UnassignUser(ctx context.Context, userID, applicationID string) error {
	now := time.Now().UTC()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Applications().UnassignUser(ctx, userID, applicationID); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllLive(ctx, userID, applicationID, now)
	})
}

// ListApplicationUsers lists the users assigned to an application.
func (s *ApplicationService) ListApplicationUsers(ctx context.Context, applicationID string) ([]domain.ApplicationAssignment, error) {
	if _, err := s.GetApplicationByID(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.Store.Applications().ListApplicationUsers(ctx, applicationID)
}

// ListUserApplications lists the applications a user may log in to.
func (s *ApplicationService) ListUserApplications(ctx context.Context, userID string) ([]domain.ApplicationAssignment, error) {
	return s.Store.Applications().ListUserApplications(ctx, userID)
}

// normalizeList trims entries and drops empties; lower forces lowercase,
// used for CORS origins which match case-insensitively.
func normalizeList(items []string, lower bool) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lower {
			item = strings.ToLower(item)
		}
		out = append(out, item)
	}
	return out
}
