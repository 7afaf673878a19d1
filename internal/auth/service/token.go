package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/cryptox"
	"github.com/authcorehq/authcore/pkg/idx"
	"github.com/authcorehq/authcore/pkg/jwtx"
	"github.com/authcorehq/authcore/pkg/slogx"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrUnknownClient          = errors.New("unknown_client")
	ErrApplicationNotAssigned = errors.New("application_not_assigned")
	ErrInvalidRefreshToken    = errors.New("invalid_refresh_token")
	ErrTooManyAttempts        = errors.New("too_many_attempts")
)

// ApplicationNotAssignedError carries the application name so the HTTP layer
// can surface an actionable message. errors.Is matches it against
// ErrApplicationNotAssigned.
type ApplicationNotAssignedError struct {
	ApplicationName string
}

func (e *ApplicationNotAssignedError) Error() string {
	return e.ApplicationName + " is not available for you"
}

func (e *ApplicationNotAssignedError) Unwrap() error { return ErrApplicationNotAssigned }

// TokenService implements the login, refresh, and logout flows.
type TokenService struct {
	Store  store.Store
	Signer jwtx.Signer
	Issuer string

	// Defaults applied when an application has no lifetime policy of its
	// own.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// FailedLoginLimit rejects further attempts from an IP once it has
	// produced that many failed logins inside FailedLoginWindow. Zero
	// disables the check.
	FailedLoginLimit  int
	FailedLoginWindow time.Duration
}

// LoginParams is the parsed login request plus caller metadata for audit.
type LoginParams struct {
	Email       string
	Password    string
	ClientID    string
	RedirectURI string
	State       string

	IPAddress string
	UserAgent string
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// dummyPasswordHash keeps the credential check shape fixed when the email
// does not resolve, so response timing cannot confirm account existence.
func dummyPasswordHash() string {
	dummyOnce.Do(func() {
		if h, err := cryptox.HashPassword("authcore-timing-guard"); err == nil {
			dummyHash = h
		}
	})
	return dummyHash
}

// Login authenticates a user against a registered application and issues a
// token bundle.
func (s *TokenService) Login(ctx context.Context, p LoginParams) (*domain.TokenBundle, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	// 1. Admission control: refuse IPs that keep failing before paying
	// the password-hash cost again.
	if s.FailedLoginLimit > 0 {
		since := now.Add(-s.FailedLoginWindow)
		n, err := s.Store.AuditLogs().CountFailedLogins(ctx, p.IPAddress, since)
		if err != nil {
			return nil, err
		}
		if n >= s.FailedLoginLimit {
			l.Warn("login attempts over threshold", "ip", p.IPAddress, "failed", n)
			return nil, ErrTooManyAttempts
		}
	}

	// 2. Resolve the user and application concurrently; absence is not an
	// error yet, the ordering of rejections below depends on both.
	var (
		user      domain.User
		userFound bool
		app       domain.Application
		appFound  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.Store.Users().GetUserByEmail(gctx, p.Email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		user, userFound = u, true
		return nil
	})
	g.Go(func() error {
		a, err := s.Store.Applications().GetApplicationByClientID(gctx, p.ClientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		app, appFound = a, true
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 3. Verify credentials. The hash comparison runs even when the user
	// is absent or unable to log in, against a throwaway hash.
	hash := dummyPasswordHash()
	usable := userFound && user.Status == domain.UserStatusActive
	if usable {
		hash = user.PasswordHash
	}
	if err := cryptox.VerifyPassword(p.Password, hash); err != nil || !usable {
		s.auditLoginFailure(ctx, domain.AuditLoginFailed, user, app, p, map[string]any{
			"email": p.Email,
		})
		return nil, ErrInvalidCredentials
	}

	// 4. The client must be registered. Checked after credentials so an
	// unknown client_id cannot skip the hashing cost.
	if !appFound {
		l.Info("login with unknown client", "client_id", p.ClientID)
		return nil, ErrUnknownClient
	}

	// 5. The user must be assigned to the application.
	assigned, err := s.Store.Applications().IsUserAssigned(ctx, user.ID, app.ID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		s.auditLoginFailure(ctx, domain.AuditLoginDenied, user, app, p, map[string]any{
			"application": app.Name,
		})
		return nil, &ApplicationNotAssignedError{ApplicationName: app.Name}
	}

	// 6. Sign the access token with the current role snapshot.
	roles, err := s.Store.Roles().ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.RoleName)
	}

	accessTTL := accessLifetime(app, s.AccessTTL)
	refreshTTL := refreshLifetime(app, s.RefreshTTL)

	accessToken, err := s.Signer.Sign(jwtx.NewAccessClaims(
		user.ID, user.Email, roleNames, app.ID, accessTTL, s.Issuer, now))
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:            idx.New().String(),
		UserID:        user.ID,
		ApplicationID: app.ID,
		TokenHash:     cryptox.FingerprintToken(refreshOpaque),
		Type:          "refresh",
		IssuedAt:      now,
		ExpiresAt:     now.Add(refreshTTL),
	}

	event := domain.AuditLoginSuccess
	details := map[string]any{"application": app.Name}
	if p.State != "" {
		event = domain.AuditLoginSuccessWithState
		details["state"] = p.State
	}

	// 7. One transaction: stamp lastLogin, revoke every live refresh
	// token for this (user, application) pair, store the replacement, and
	// record the outcome. Two racing logins cannot both leave a live
	// token this way.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
			return err
		}
		if err := tx.RefreshTokens().RevokeAllLive(ctx, user.ID, app.ID, now); err != nil {
			return err
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
			return err
		}
		return tx.AuditLogs().CreateAuditLog(ctx, domain.AuditLogEntry{
			ID:            idx.New().String(),
			Event:         event,
			UserID:        user.ID,
			ApplicationID: app.ID,
			Details:       details,
			IPAddress:     p.IPAddress,
			UserAgent:     p.UserAgent,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	bundle := &domain.TokenBundle{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "bearer",
		ExpiresIn:    int(accessTTL.Seconds()),
	}
	if p.RedirectURI != "" {
		redirect, err := buildRedirect(p.RedirectURI, accessToken, p.State)
		if err != nil {
			return nil, err
		}
		bundle.RedirectTo = redirect
	}

	l.Info("login succeeded", "user_id", user.ID, "application_id", app.ID)
	return bundle, nil
}

// Refresh exchanges a live opaque refresh token for a fresh access token.
// The refresh token itself is not rotated; it stays valid until its fixed
// expiry or an explicit re-login revokes it.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenBundle, error) {
	now := time.Now().UTC()

	// 1. Resolve the ledger row by fingerprint.
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !rt.Live(now) {
		return nil, ErrInvalidRefreshToken
	}

	// 2. Re-resolve the owner and the application; the role snapshot is
	// re-read so a refresh picks up role changes made since login.
	user, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if user.Status != domain.UserStatusActive {
		return nil, ErrInvalidRefreshToken
	}

	app, err := s.Store.Applications().GetApplicationByID(ctx, rt.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	roles, err := s.Store.Roles().ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.RoleName)
	}

	accessTTL := accessLifetime(app, s.AccessTTL)
	accessToken, err := s.Signer.Sign(jwtx.NewAccessClaims(
		user.ID, user.Email, roleNames, app.ID, accessTTL, s.Issuer, now))
	if err != nil {
		return nil, err
	}

	return &domain.TokenBundle{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(accessTTL.Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. The access token stays valid
// until its embedded expiry.
func (s *TokenService) Logout(ctx context.Context, refreshOpaque string) error {
	now := time.Now().UTC()

	err := s.Store.RefreshTokens().RevokeRefreshToken(ctx,
		cryptox.FingerprintToken(refreshOpaque), now)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	return err
}

// auditLoginFailure records a rejection outcome. Failures to write are
// logged and swallowed so the caller still sees the auth error.
func (s *TokenService) auditLoginFailure(
	ctx context.Context,
	event string,
	user domain.User,
	app domain.Application,
	p LoginParams,
	details map[string]any,
) {
	entry := domain.AuditLogEntry{
		ID:            idx.New().String(),
		Event:         event,
		UserID:        user.ID,
		ApplicationID: app.ID,
		Details:       details,
		IPAddress:     p.IPAddress,
		UserAgent:     p.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.AuditLogs().CreateAuditLog(ctx, entry); err != nil {
		slogx.FromContext(ctx).Error("audit write failed", "event", event, "error", err)
	}
}

func accessLifetime(app domain.Application, fallback time.Duration) time.Duration {
	if app.AccessTokenTTL > 0 {
		return time.Duration(app.AccessTokenTTL) * time.Minute
	}
	if fallback > 0 {
		return fallback
	}
	return jwtx.DefaultAccessTokenTTL
}

func refreshLifetime(app domain.Application, fallback time.Duration) time.Duration {
	if app.RefreshTokenTTL > 0 {
		return time.Duration(app.RefreshTokenTTL) * 24 * time.Hour
	}
	if fallback > 0 {
		return fallback
	}
	return jwtx.DefaultRefreshTokenTTL
}

func buildRedirect(redirectURI, accessToken, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", accessToken)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
