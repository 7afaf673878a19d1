package service

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/authcorehq/authcore/pkg/cryptox"
	"github.com/authcorehq/authcore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authcore-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokenService(t *testing.T) (*TokenService, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	signer, err := jwtx.NewSignerHS256([]byte(testSecret))
	require.NoError(t, err)

	svc := &TokenService{
		Store:  st,
		Signer: signer,
		Issuer: "authcore-test",
	}
	return svc, st
}

type fixture struct {
	user     domain.User
	password string
	app      domain.Application
}

// seedLogin creates an active user assigned to a fresh application with a
// 15 minute / 7 day lifetime policy.
func seedLogin(t *testing.T, st *sqlite.Store) fixture {
	t.Helper()
	ctx := context.Background()

	users := &UserService{Store: st}
	u, password, err := users.CreateUser(ctx, "Test User", "user@example.com", "hunter2hunter2", "")
	require.NoError(t, err)

	apps := &ApplicationService{Store: st}
	a, _, err := apps.CreateApplication(ctx, ApplicationParams{
		Name:            "Dashboard",
		RedirectURIs:    []string{"https://dash.example.com/callback"},
		AccessTokenTTL:  15,
		RefreshTokenTTL: 7,
	})
	require.NoError(t, err)
	require.NoError(t, apps.AssignUser(ctx, u.ID, a.ID))

	return fixture{user: u, password: password, app: a}
}

func loginParams(f fixture) LoginParams {
	return LoginParams{
		Email:     f.user.Email,
		Password:  f.password,
		ClientID:  f.app.ClientID,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	}
}

func countEvents(t *testing.T, st *sqlite.Store, event string) int {
	t.Helper()
	entries, err := st.AuditLogs().ListRecent(context.Background(), 100)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Event == event {
			n++
		}
	}
	return n
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	before := time.Now().UTC()
	bundle, err := svc.Login(ctx, loginParams(f))
	require.NoError(t, err)

	require.Equal(t, "bearer", bundle.TokenType)
	require.Equal(t, 900, bundle.ExpiresIn) // 15 minutes
	require.NotEmpty(t, bundle.AccessToken)
	require.NotEmpty(t, bundle.RefreshToken)
	require.Empty(t, bundle.RedirectTo)

	t.Run("claims carry the role snapshot and application id", func(t *testing.T) {
		verifier := jwtx.NewVerifierHS256([]byte(testSecret), "authcore-test")
		claims, err := verifier.Verify(bundle.AccessToken)
		require.NoError(t, err)
		require.Equal(t, f.user.ID, claims.Subject)
		require.Equal(t, f.user.Email, claims.Email)
		require.Equal(t, f.app.ID, claims.ApplicationID)
		require.WithinDuration(t, before.Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
	})

	t.Run("last login stamped", func(t *testing.T) {
		u, err := st.Users().GetUserByID(ctx, f.user.ID)
		require.NoError(t, err)
		require.NotNil(t, u.LastLogin)
		require.WithinDuration(t, before, *u.LastLogin, 5*time.Second)
	})

	t.Run("ledger row expires in seven days", func(t *testing.T) {
		rt, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(bundle.RefreshToken))
		require.NoError(t, err)
		require.WithinDuration(t, before.Add(7*24*time.Hour), rt.ExpiresAt, 5*time.Second)
		require.True(t, rt.Live(time.Now().UTC()))
	})

	require.Equal(t, 1, countEvents(t, st, domain.AuditLoginSuccess))
}

func TestLoginRotationLeavesOneLiveToken(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	const logins = 4
	for i := 0; i < logins; i++ {
		_, err := svc.Login(ctx, loginParams(f))
		require.NoError(t, err)
	}

	tokens, err := st.RefreshTokens().ListUserApplicationTokens(ctx, f.user.ID, f.app.ID)
	require.NoError(t, err)
	require.Len(t, tokens, logins)

	now := time.Now().UTC()
	live := 0
	for _, tok := range tokens {
		if tok.Live(now) {
			live++
		}
	}
	require.Equal(t, 1, live)
}

func TestLoginInvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	t.Run("wrong password", func(t *testing.T) {
		p := loginParams(f)
		p.Password = "not-the-password"
		_, err := svc.Login(ctx, p)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Equal(t, 1, countEvents(t, st, domain.AuditLoginFailed))
	})

	t.Run("unknown email takes the same path", func(t *testing.T) {
		p := loginParams(f)
		p.Email = "nobody@example.com"
		_, err := svc.Login(ctx, p)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Equal(t, 2, countEvents(t, st, domain.AuditLoginFailed))
	})

	t.Run("inactive user rejected with valid password", func(t *testing.T) {
		users := &UserService{Store: st}
		_, err := users.UpdateUser(ctx, f.user.ID, "", "", string(domain.UserStatusLocked))
		require.NoError(t, err)

		_, err = svc.Login(ctx, loginParams(f))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginUnknownClient(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	p := loginParams(f)
	p.ClientID = "no-such-client"
	_, err := svc.Login(ctx, p)
	require.ErrorIs(t, err, ErrUnknownClient)

	// A data-integrity error, not a security event.
	require.Equal(t, 0, countEvents(t, st, domain.AuditLoginFailed))
	require.Equal(t, 0, countEvents(t, st, domain.AuditLoginDenied))
}

func TestLoginApplicationNotAssigned(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	apps := &ApplicationService{Store: st}
	other, _, err := apps.CreateApplication(ctx, ApplicationParams{Name: "Reporting"})
	require.NoError(t, err)

	p := loginParams(f)
	p.ClientID = other.ClientID
	_, err = svc.Login(ctx, p)
	require.ErrorIs(t, err, ErrApplicationNotAssigned)
	require.Contains(t, err.Error(), "Reporting")

	require.Equal(t, 1, countEvents(t, st, domain.AuditLoginDenied))

	// No tokens were issued.
	tokens, err := st.RefreshTokens().ListUserApplicationTokens(ctx, f.user.ID, other.ID)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestLoginRedirectAndState(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	p := loginParams(f)
	p.RedirectURI = "https://dash.example.com/callback"
	p.State = "xyzzy"

	bundle, err := svc.Login(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.RedirectTo)

	u, err := url.Parse(bundle.RedirectTo)
	require.NoError(t, err)
	require.Equal(t, "dash.example.com", u.Host)
	require.Equal(t, bundle.AccessToken, u.Query().Get("token"))
	require.Equal(t, "xyzzy", u.Query().Get("state"))

	require.Equal(t, 1, countEvents(t, st, domain.AuditLoginSuccessWithState))
	require.Equal(t, 0, countEvents(t, st, domain.AuditLoginSuccess))
}

func TestLoginAdmissionControl(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	svc.FailedLoginLimit = 2
	svc.FailedLoginWindow = 15 * time.Minute

	bad := loginParams(f)
	bad.Password = "wrong"
	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Over the threshold now, even with the right password.
	_, err := svc.Login(ctx, loginParams(f))
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// A different IP is unaffected.
	ok := loginParams(f)
	ok.IPAddress = "198.51.100.9"
	_, err = svc.Login(ctx, ok)
	require.NoError(t, err)
}

func TestRefreshRoundTrip(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	first, err := svc.Login(ctx, loginParams(f))
	require.NoError(t, err)

	t.Run("live token yields a fresh access token", func(t *testing.T) {
		bundle, err := svc.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, bundle.AccessToken)
		require.Empty(t, bundle.RefreshToken) // not rotated
		require.Equal(t, 900, bundle.ExpiresIn)
	})

	t.Run("refresh picks up role changes", func(t *testing.T) {
		roles := &RolesService{Store: st}
		admin, err := roles.CreateRole(ctx, domain.RoleAdmin, "", nil)
		require.NoError(t, err)
		require.NoError(t, roles.AssignRole(ctx, f.user.ID, admin.ID))

		bundle, err := svc.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)

		verifier := jwtx.NewVerifierHS256([]byte(testSecret), "authcore-test")
		claims, err := verifier.Verify(bundle.AccessToken)
		require.NoError(t, err)
		require.Contains(t, claims.Roles, domain.RoleAdmin)
	})

	t.Run("second login revokes the first refresh token", func(t *testing.T) {
		_, err := svc.Login(ctx, loginParams(f))
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, first.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	bundle, err := svc.Login(ctx, loginParams(f))
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, bundle.RefreshToken))

	_, err = svc.Refresh(ctx, bundle.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Logging out twice is rejected; the row is already revoked.
	require.ErrorIs(t, svc.Logout(ctx, bundle.RefreshToken), ErrInvalidRefreshToken)
}

func TestUpdatePasswordRevokesSessions(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	bundle, err := svc.Login(ctx, loginParams(f))
	require.NoError(t, err)

	users := &UserService{Store: st}
	require.NoError(t, users.UpdatePassword(ctx, f.user.ID, "a-brand-new-password"))

	_, err = svc.Refresh(ctx, bundle.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	u, err := st.Users().GetUserByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, u.PasswordLastChanged)

	// Old password no longer works, new one does.
	p := loginParams(f)
	_, err = svc.Login(ctx, p)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	p.Password = "a-brand-new-password"
	_, err = svc.Login(ctx, p)
	require.NoError(t, err)
}

func TestUnassignRevokesApplicationTokens(t *testing.T) {
	t.Parallel()

	svc, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	bundle, err := svc.Login(ctx, loginParams(f))
	require.NoError(t, err)

	apps := &ApplicationService{Store: st}
	require.NoError(t, apps.UnassignUser(ctx, f.user.ID, f.app.ID))

	_, err = svc.Refresh(ctx, bundle.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Login(ctx, loginParams(f))
	require.ErrorIs(t, err, ErrApplicationNotAssigned)
}

func TestRotateSecretReturnsPlaintextOnce(t *testing.T) {
	t.Parallel()

	_, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	apps := &ApplicationService{Store: st}
	secret, err := apps.RotateSecret(ctx, f.app.ID)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	a, err := st.Applications().GetApplicationByID(ctx, f.app.ID)
	require.NoError(t, err)
	require.NotEqual(t, secret, a.ClientSecretHash)
	require.NoError(t, cryptox.VerifyPassword(secret, a.ClientSecretHash))
}

func TestHousekeepingPurgesLongExpiredTokens(t *testing.T) {
	t.Parallel()

	_, st := newTokenService(t)
	ctx := context.Background()
	f := seedLogin(t, st)

	now := time.Now().UTC()
	stale := domain.RefreshToken{
		ID:            "01STALESTALESTALESTALESTALE",
		UserID:        f.user.ID,
		ApplicationID: f.app.ID,
		TokenHash:     "stale-hash",
		Type:          "refresh",
		IssuedAt:      now.Add(-60 * 24 * time.Hour),
		ExpiresAt:     now.Add(-40 * 24 * time.Hour),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, stale))

	recent := stale
	recent.ID = "01FRESHFRESHFRESHFRESHFRESH"
	recent.TokenHash = "recent-hash"
	recent.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, recent))

	hk := NewHousekeepingService(st, discardLogger(), time.Hour, 30*24*time.Hour)
	hk.Start()
	hk.Stop()

	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "stale-hash")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Expired less than the retention horizon ago, still present.
	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "recent-hash")
	require.NoError(t, err)
}
