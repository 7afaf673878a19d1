package httpx

import "context"

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Principal is the resolved identity attached to an authenticated request:
// user id, email, role-name snapshot, and the application the token was
// issued for. The role set is normalized exactly once here so downstream
// consumers never re-interpret raw claim shapes.
type Principal struct {
	UserID        string
	Email         string
	Roles         []string
	ApplicationID string

	roleSet map[string]struct{}
}

// NewPrincipal builds a principal with its role set precomputed.
func NewPrincipal(userID, email string, roles []string, applicationID string) Principal {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Principal{
		UserID:        userID,
		Email:         email,
		Roles:         roles,
		ApplicationID: applicationID,
		roleSet:       set,
	}
}

// HasRole reports whether the principal holds the named role. Role names
// are matched case-sensitively.
func (p Principal) HasRole(name string) bool {
	_, ok := p.roleSet[name]
	return ok
}

// HasAnyRole reports whether the principal holds at least one of the named
// roles.
func (p Principal) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if p.HasRole(n) {
			return true
		}
	}
	return false
}

// ContextWithPrincipal attaches the principal for downstream handlers.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the request principal, if one was attached
// by the authn middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
