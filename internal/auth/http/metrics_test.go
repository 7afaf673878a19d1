package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/authcorehq/authcore/internal/auth/metrics"
	"github.com/authcorehq/authcore/pkg/httpx"
)

func scrapeMetrics(t *testing.T, reg prometheus.Gatherer) string {
	t.Helper()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsMiddlewareObservesResponses(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := httpx.Chain(mux, MetricsMiddleware(collector))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/users/u-1", nil),
		httptest.NewRequest(http.MethodGet, "/users/u-2", nil),
		httptest.NewRequest(http.MethodDelete, "/users/u-1", nil),
	} {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	out := scrapeMetrics(t, reg)
	require.Contains(t, out, `authcore_http_responses_total{status_code="200"} 2`)
	require.Contains(t, out, `authcore_http_responses_total{status_code="204"} 1`)
	require.Contains(t, out, `authcore_http_duration_seconds_count{method="GET",path="/users/{id}"} 2`)
	require.Contains(t, out, `authcore_http_duration_seconds_count{method="DELETE",path="/users/{id}"} 1`)
}

func TestMetricsMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	handler := httpx.Chain(http.NewServeMux(), MetricsMiddleware(collector))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	out := scrapeMetrics(t, reg)
	require.Contains(t, out, `authcore_http_responses_total{status_code="404"} 1`)
	require.Contains(t, out, `authcore_http_duration_seconds_count{method="GET",path="unmatched"} 1`)
}
