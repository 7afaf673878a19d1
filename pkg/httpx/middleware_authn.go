package httpx

import (
	"net/http"
	"strings"

	"github.com/authcorehq/authcore/pkg/jwtx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

// AuthnMiddleware resolves the bearer token on each request to a Principal.
// Verification is stateless: the token's signature and validity window are
// checked and the principal is populated from the embedded claims with no
// store round-trip. Any failure yields a uniform 401 with no partial
// principal attached.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			principal := NewPrincipal(claims.Subject, claims.Email, claims.Roles, claims.ApplicationID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(ctx, principal)))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "unauthorized", Message: desc})
}
