package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/authcorehq/authcore/pkg/cryptox"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authcore-http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// injectPrincipal stands in for the authn guard in middleware tests.
func injectPrincipal(p httpx.Principal) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(httpx.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func auditedMux(audit *service.AuditService, p httpx.Principal) *http.ServeMux {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"updated": true})
	})

	mux := http.NewServeMux()
	chained := httpx.Chain(inner, injectPrincipal(p), AdminAuditMiddleware(audit))
	mux.Handle("PATCH /users/{id}", chained)
	mux.Handle("POST /auth/logout", chained)
	return mux
}

func waitForEntries(t *testing.T, audit *service.AuditService, want int) []domain.AuditLogEntry {
	t.Helper()

	var entries []domain.AuditLogEntry
	require.Eventually(t, func() bool {
		var err error
		entries, err = audit.ListRecent(context.Background(), 50)
		require.NoError(t, err)
		return len(entries) >= want
	}, 2*time.Second, 10*time.Millisecond)
	return entries
}

func TestAdminAuditRecordsPrivilegedWrites(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	audit := &service.AuditService{Store: st}

	admin := httpx.NewPrincipal("admin-1", "admin@example.com", []string{domain.RoleAdmin}, "app-1")
	mux := auditedMux(audit, admin)

	body := strings.NewReader(`{"name":"New Name","password":"s3cret"}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/u-42?flag=1", body)
	req.Header.Set("User-Agent", "audit-test")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := waitForEntries(t, audit, 1)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, domain.AuditAdminAction, e.Event)
	require.Equal(t, "admin-1", e.UserID)
	require.Equal(t, "audit-test", e.UserAgent)
	require.Equal(t, "PATCH", e.Details["method"])
	require.Equal(t, "/users/u-42", e.Details["path"])
	require.Equal(t, "flag=1", e.Details["query"])

	params, ok := e.Details["params"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "u-42", params["id"])

	reqBody, ok := e.Details["body"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "New Name", reqBody["name"])
	require.Equal(t, "[redacted]", reqBody["password"])

	result, ok := e.Details["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, result["updated"])
}

func TestAdminAuditRedactsNestedSecrets(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	audit := &service.AuditService{Store: st}

	admin := httpx.NewPrincipal("admin-1", "admin@example.com", []string{domain.RoleAdmin}, "app-1")
	mux := auditedMux(audit, admin)

	body := strings.NewReader(`{
		"name": "ok",
		"user": {"password": "hunter2", "profile": {"clientSecret": "abc"}},
		"grants": [{"apiSecret": "xyz", "scope": "read"}]
	}`)
	req := httptest.NewRequest(http.MethodPatch, "/users/u-42", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := waitForEntries(t, audit, 1)
	reqBody, ok := entries[0].Details["body"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ok", reqBody["name"])

	user, ok := reqBody["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "[redacted]", user["password"])

	profile, ok := user["profile"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "[redacted]", profile["clientSecret"])

	grants, ok := reqBody["grants"].([]any)
	require.True(t, ok)
	require.Len(t, grants, 1)
	grant, ok := grants[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "[redacted]", grant["apiSecret"])
	require.Equal(t, "read", grant["scope"])
}

func TestAdminAuditWriteSurvivesCanceledRequest(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	audit := &service.AuditService{Store: st}

	admin := httpx.NewPrincipal("admin-1", "admin@example.com", []string{domain.RoleAdmin}, "app-1")
	mux := auditedMux(audit, admin)

	// The async write must not depend on the request context staying
	// alive after the handler chain unwinds.
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPatch, "/users/u-42", strings.NewReader(`{}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	cancel()
	require.Equal(t, http.StatusOK, rec.Code)

	entries := waitForEntries(t, audit, 1)
	require.Equal(t, domain.AuditAdminAction, entries[0].Event)
}

func TestAdminAuditSkipsUnprivilegedAndExempt(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	audit := &service.AuditService{Store: st}

	t.Run("plain user writes nothing", func(t *testing.T) {
		user := httpx.NewPrincipal("user-1", "user@example.com", []string{"User"}, "app-1")
		mux := auditedMux(audit, user)

		req := httptest.NewRequest(http.MethodPatch, "/users/u-42", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty role list writes nothing", func(t *testing.T) {
		anon := httpx.NewPrincipal("user-2", "anon@example.com", nil, "app-1")
		mux := auditedMux(audit, anon)

		req := httptest.NewRequest(http.MethodPatch, "/users/u-42", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("auth endpoints are exempt even for admins", func(t *testing.T) {
		admin := httpx.NewPrincipal("admin-1", "admin@example.com", []string{domain.RoleSuperAdmin}, "app-1")
		mux := auditedMux(audit, admin)

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	// Give any stray async writes a chance to land, then confirm none did.
	time.Sleep(100 * time.Millisecond)
	entries, err := audit.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAdminAuditFailureDoesNotAffectResponse(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	audit := &service.AuditService{Store: st}

	admin := httpx.NewPrincipal("admin-1", "admin@example.com", []string{domain.RoleAdmin}, "app-1")
	mux := auditedMux(audit, admin)

	// Closing the store makes the audit write fail; the caller must not
	// notice.
	require.NoError(t, st.Close())

	req := httptest.NewRequest(http.MethodPatch, "/users/u-42", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
