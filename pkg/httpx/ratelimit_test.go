package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")

		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Run("combines multiple extractors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		p := httpx.NewPrincipal("user-1", "a@example.com", nil, "app-1")
		req = req.WithContext(httpx.ContextWithPrincipal(req.Context(), p))

		extractor := httpx.CompositeKeyExtractor(":",
			httpx.PrincipalKeyExtractor,
			httpx.IPKeyExtractor,
		)
		require.Equal(t, "user-1:192.168.1.1", extractor(req))
	})

	t.Run("skips empty values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil) // anonymous
		req.RemoteAddr = "192.168.1.1:12345"

		extractor := httpx.CompositeKeyExtractor(":",
			httpx.PrincipalKeyExtractor,
			httpx.IPKeyExtractor,
		)
		require.Equal(t, "192.168.1.1", extractor(req))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows requests under limit", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Second, Burst: 5}
		limited := httpx.RateLimitMiddleware(config, httpx.IPKeyExtractor)(okHandler)

		for range 5 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:1000"
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("rejects requests over limit", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
		limited := httpx.RateLimitMiddleware(config, httpx.IPKeyExtractor)(okHandler)

		for range 2 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.2:1000"
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("keys are isolated", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		limited := httpx.RateLimitMiddleware(config, httpx.IPKeyExtractor)(okHandler)

		first := httptest.NewRequest(http.MethodGet, "/", nil)
		first.RemoteAddr = "10.0.0.3:1000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		other := httptest.NewRequest(http.MethodGet, "/", nil)
		other.RemoteAddr = "10.0.0.4:1000"
		rec = httptest.NewRecorder()
		limited.ServeHTTP(rec, other)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
