package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func seedApplicationWithOrigin(t *testing.T, apps *service.ApplicationService, name string, origins ...string) {
	t.Helper()
	_, _, err := apps.CreateApplication(context.Background(), service.ApplicationParams{
		Name:        name,
		CORSOrigins: origins,
	})
	require.NoError(t, err)
}

func TestCachedOriginResolver(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	apps := &service.ApplicationService{Store: st}
	seedApplicationWithOrigin(t, apps, "Dashboard", "https://dash.example.com")

	resolver := NewCachedOriginResolver(st.Applications(), time.Minute)
	ctx := context.Background()

	t.Run("registered origin allowed, case-insensitive", func(t *testing.T) {
		ok, err := resolver.Allowed(ctx, "https://dash.example.com")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = resolver.Allowed(ctx, "  HTTPS://DASH.EXAMPLE.COM ")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unregistered origin denied", func(t *testing.T) {
		ok, err := resolver.Allowed(ctx, "https://evil.example.com")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("negative answers are cached for the TTL", func(t *testing.T) {
		ok, err := resolver.Allowed(ctx, "https://new.example.com")
		require.NoError(t, err)
		require.False(t, ok)

		seedApplicationWithOrigin(t, apps, "Newcomer", "https://new.example.com")

		// Still the cached rejection inside the TTL window.
		ok, err = resolver.Allowed(ctx, "https://new.example.com")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestCachedOriginResolverStaleness(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	apps := &service.ApplicationService{Store: st}

	resolver := NewCachedOriginResolver(st.Applications(), 20*time.Millisecond)
	ctx := context.Background()

	ok, err := resolver.Allowed(ctx, "https://late.example.com")
	require.NoError(t, err)
	require.False(t, ok)

	seedApplicationWithOrigin(t, apps, "Latecomer", "https://late.example.com")

	// The cached rejection ages out after the TTL and the registry answer
	// takes over.
	require.Eventually(t, func() bool {
		ok, err := resolver.Allowed(ctx, "https://late.example.com")
		require.NoError(t, err)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	apps := &service.ApplicationService{Store: st}
	seedApplicationWithOrigin(t, apps, "Dashboard", "https://dash.example.com")

	resolver := NewCachedOriginResolver(st.Applications(), time.Minute)
	handler := CORSMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no origin passes untouched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed origin gets credentialed headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Contains(t, rec.Header().Values("Vary"), "Origin")
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/users", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
