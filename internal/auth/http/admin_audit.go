package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

// captureLimit bounds how much request/response body gets copied into an
// audit row.
const captureLimit = 64 << 10

// auditExemptPaths are the authentication endpoints that privileged users
// hit like everyone else; logging them would only record their own
// credentials flow.
var auditExemptPaths = map[string]struct{}{
	"/auth/login":   {},
	"/auth/refresh": {},
	"/auth/logout":  {},
}

// AdminAuditMiddleware records every request a privileged principal makes.
// It runs after the authn guard, so a principal is either resolved or the
// request never reaches it. The write happens after the response is sent
// and never affects the caller: persistence failures go to the logs only.
func AdminAuditMiddleware(audit *service.AuditService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := httpx.PrincipalFromContext(r.Context())
			if !ok || !principal.HasAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin) {
				next.ServeHTTP(w, r)
				return
			}
			if _, exempt := auditExemptPaths[r.URL.Path]; exempt {
				next.ServeHTTP(w, r)
				return
			}

			body := captureRequestBody(r)
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := domain.AuditLogEntry{
				Event:         domain.AuditAdminAction,
				UserID:        principal.UserID,
				ApplicationID: principal.ApplicationID,
				Details: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"body":   decodeCaptured(body),
					"params": routeParams(r),
					"query":  r.URL.RawQuery,
					"result": decodeCaptured(rec.body.Bytes()),
					"status": rec.status,
				},
				IPAddress: httpx.ClientIP(r),
				UserAgent: r.UserAgent(),
			}

			// Fire and forget; the response has already gone out. The
			// request must not be touched once this handler returns, so
			// the goroutine captures a detached context instead of r.
			ctx := context.WithoutCancel(r.Context())
			log := slogx.FromContext(ctx)
			go func() {
				if err := audit.Record(ctx, entry); err != nil {
					log.Error("admin audit write failed", "path", entry.Details["path"], "error", err)
				}
			}()
		})
	}
}

// captureRequestBody reads up to captureLimit bytes of the body and puts a
// fresh reader back so the handler still sees the full payload.
func captureRequestBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, captureLimit))
	if err != nil {
		return nil
	}
	rest, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), bytes.NewReader(rest)))
	return buf
}

// decodeCaptured returns parsed JSON when the captured bytes are JSON, the
// raw string otherwise. Password fields are redacted.
func decodeCaptured(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	redactSecrets(v)
	return v
}

// redactSecrets blanks password and secret fields at any nesting depth,
// including inside arrays of objects.
func redactSecrets(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			key := strings.ToLower(k)
			if strings.Contains(key, "password") || strings.Contains(key, "secret") {
				t[k] = "[redacted]"
				continue
			}
			redactSecrets(val)
		}
	case []any:
		for _, item := range t {
			redactSecrets(item)
		}
	}
}

// routeParams extracts the named wildcards from the matched ServeMux
// pattern, e.g. {"id": "01ABC"} for "PATCH /users/{id}".
func routeParams(r *http.Request) map[string]string {
	pattern := r.Pattern
	if pattern == "" {
		return nil
	}

	params := map[string]string{}
	for _, seg := range strings.Split(pattern, "/") {
		if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			name := strings.TrimSuffix(seg[1:len(seg)-1], "...")
			params[name] = r.PathValue(name)
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// responseRecorder tees the response so the audit entry can carry the
// handler's result payload.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.body.Len() < captureLimit {
		r.body.Write(p[:min(len(p), captureLimit-r.body.Len())])
	}
	return r.ResponseWriter.Write(p)
}
