package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/authcorehq/authcore/internal/auth/metrics"
	"github.com/authcorehq/authcore/pkg/httpx"
)

// MetricsMiddleware observes every response's status code and handling
// latency. It sits outside the mux; by the time the handler returns the
// request carries its matched route pattern, so the duration label set
// stays bounded by the route table.
func MetricsMiddleware(collector *metrics.Collector) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			collector.RecordHTTPResponse(sw.status)
			collector.RecordHTTPDuration(r.Method, routeLabel(r.Pattern), time.Since(start))
		})
	}
}

// routeLabel strips the method prefix from a ServeMux pattern, leaving the
// path template ("GET /users/{id}" becomes "/users/{id}"). Requests that
// matched no route share one label.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, found := strings.Cut(pattern, " "); found {
		return path
	}
	return pattern
}

// statusWriter remembers the status code written to the underlying
// ResponseWriter.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
