package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// OriginResolver answers whether a cross-origin caller is allowed. The
// registry-backed implementation caches per origin; tests can substitute
// their own.
type OriginResolver interface {
	Allowed(ctx context.Context, origin string) (bool, error)
}

// CachedOriginResolver resolves origins with a targeted per-origin registry
// lookup and memoizes the answer for TTL. Per-origin lookup beats a full
// registry snapshot here: the working set of distinct origins is small and
// a miss costs one indexed query. Newly registered origins may be rejected
// for up to TTL after registration; negative answers are cached too, for
// the same TTL.
type CachedOriginResolver struct {
	apps  store.Applications
	cache *expirable.LRU[string, bool]
}

// NewCachedOriginResolver builds a resolver with the given cache TTL. A
// zero ttl defaults to 5 minutes.
func NewCachedOriginResolver(apps store.Applications, ttl time.Duration) *CachedOriginResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedOriginResolver{
		apps:  apps,
		cache: expirable.NewLRU[string, bool](1024, nil, ttl),
	}
}

func (r *CachedOriginResolver) Allowed(ctx context.Context, origin string) (bool, error) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false, nil
	}

	if allowed, ok := r.cache.Get(origin); ok {
		return allowed, nil
	}

	allowed, err := r.apps.AllowsOrigin(ctx, origin)
	if err != nil {
		return false, err
	}
	r.cache.Add(origin, allowed)
	return allowed, nil
}

// CORSMiddleware enforces the registry-driven cross-origin policy: requests
// without an Origin header pass untouched (same-origin or non-browser
// callers), registered origins get credentialed CORS headers, anything else
// is rejected.
func CORSMiddleware(resolver OriginResolver) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := resolver.Allowed(r.Context(), origin)
			if err != nil {
				slogx.FromContext(r.Context()).Error("origin lookup failed", "origin", origin, "error", err)
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "origin check failed")
				return
			}
			if !allowed {
				httpx.WriteError(w, http.StatusForbidden, "origin_not_allowed", "origin is not registered for any application")
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
