package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/metrics"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/jwtx"
	"github.com/authcorehq/authcore/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	originResolver OriginResolver
	collector      *metrics.Collector
	gatherer       prometheus.Gatherer

	TokenService       *service.TokenService
	UserService        *service.UserService
	ApplicationService *service.ApplicationService
	RolesService       *service.RolesService
	AuditService       *service.AuditService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	originResolver OriginResolver,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:            http.NewServeMux(),
		verifier:       verifier,
		buildVersion:   buildVersion,
		startTime:      time.Now(),
		store:          st,
		originResolver: originResolver,
		collector:      collector,
		gatherer:       gatherer,
		logger:         logger,
	}

	// Global chain: request logging first, then the cross-origin policy.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		CORSMiddleware(r.originResolver),
	}
	if r.collector != nil {
		r.middlewares = append(r.middlewares, MetricsMiddleware(r.collector))
	}

	return r
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerApplications()
	r.registerRoles()
	r.registerAudit()
	r.registerSystem()
}

func (r *Router) registerAuth() {
	login := &LoginHandler{TokenService: r.TokenService, Metrics: r.collector}
	refresh := &RefreshHandler{TokenService: r.TokenService, Metrics: r.collector}
	logout := &LogoutHandler{TokenService: r.TokenService}

	// Credential attempts get the strict limit; brute force is also
	// bounded by the audit-backed admission control inside the service.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(login,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(refresh,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(logout,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

// secured wraps h with the authn guard, the admin audit interceptor, and a
// per-user rate limit; extra route-level middlewares run innermost.
func (r *Router) secured(h http.Handler, extra ...httpx.Middleware) http.Handler {
	chain := []httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		AdminAuditMiddleware(r.AuditService),
		httpx.RateLimitByUser(httpx.LenientLimit),
	}
	chain = append(chain, extra...)
	return httpx.Chain(h, chain...)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		UserService:        r.UserService,
		RolesService:       r.RolesService,
		ApplicationService: r.ApplicationService,
	}

	admin := httpx.RequireAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin)

	r.Mux.Handle("GET /users", r.secured(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("GET /users/{id}", r.secured(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("POST /users", r.secured(http.HandlerFunc(h.HandleCreate), admin))
	r.Mux.Handle("PATCH /users/{id}", r.secured(http.HandlerFunc(h.HandleUpdate), admin))
	r.Mux.Handle("DELETE /users/{id}", r.secured(http.HandlerFunc(h.HandleDelete), admin))
	r.Mux.Handle("PUT /users/{id}/password", r.secured(http.HandlerFunc(h.HandleUpdatePassword), admin))

	r.Mux.Handle("GET /users/{id}/roles", r.secured(http.HandlerFunc(h.HandleListRoles)))
	r.Mux.Handle("POST /users/{id}/roles", r.secured(http.HandlerFunc(h.HandleAssignRole), admin))
	r.Mux.Handle("DELETE /users/{id}/roles/{roleId}", r.secured(http.HandlerFunc(h.HandleUnassignRole), admin))

	r.Mux.Handle("GET /users/{id}/applications", r.secured(http.HandlerFunc(h.HandleListApplications)))
}

func (r *Router) registerApplications() {
	h := &ApplicationsHandler{ApplicationService: r.ApplicationService}

	admin := httpx.RequireAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin)

	r.Mux.Handle("GET /applications", r.secured(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("GET /applications/{id}", r.secured(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("POST /applications", r.secured(http.HandlerFunc(h.HandleCreate), admin))
	r.Mux.Handle("PATCH /applications/{id}", r.secured(http.HandlerFunc(h.HandleUpdate), admin))
	r.Mux.Handle("DELETE /applications/{id}", r.secured(http.HandlerFunc(h.HandleDelete), admin))
	r.Mux.Handle("POST /applications/{id}/rotate-secret", r.secured(http.HandlerFunc(h.HandleRotateSecret), admin))

	r.Mux.Handle("GET /applications/{id}/users", r.secured(http.HandlerFunc(h.HandleListUsers)))
	r.Mux.Handle("POST /applications/{id}/users", r.secured(http.HandlerFunc(h.HandleAssignUser), admin))
	r.Mux.Handle("DELETE /applications/{id}/users/{userId}", r.secured(http.HandlerFunc(h.HandleUnassignUser), admin))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RolesService: r.RolesService}

	admin := httpx.RequireAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin)

	r.Mux.Handle("GET /roles", r.secured(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("POST /roles", r.secured(http.HandlerFunc(h.HandleCreate), admin))
	r.Mux.Handle("DELETE /roles/{id}", r.secured(http.HandlerFunc(h.HandleDelete), admin))
}

func (r *Router) registerAudit() {
	h := &AuditHandler{AuditService: r.AuditService}

	r.Mux.Handle("GET /audit/recent",
		r.secured(http.HandlerFunc(h.HandleRecent),
			httpx.RequireAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))

	if r.gatherer != nil {
		r.Mux.Handle("GET /metrics", metrics.Handler(r.gatherer))
	}
}
