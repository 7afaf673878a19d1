package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyRole lets the request through only when the resolved principal
// holds at least one of the named roles. Must run after AuthnMiddleware.
func RequireAnyRole(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !p.HasAnyRole(required...) {
				writeRoleError(w, required...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRoleError(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden", Message: "insufficient role"})
}
