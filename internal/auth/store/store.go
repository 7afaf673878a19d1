package store

import (
	"context"
	"errors"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Applications() Applications
	Roles() Roles
	RefreshTokens() RefreshTokens
	AuditLogs() AuditLogs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Multi-step login work (revoke prior
	// tokens, then issue the new one) must go through here so two racing
	// logins cannot leave two live tokens.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store: the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// ListUsersParams filters and paginates the user directory.
type ListUsersParams struct {
	Page   int
	Limit  int
	Search string // matches name or email, case-insensitive substring
	Status string
	Role   string // role name
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up case-insensitively; email is the
	// login identifier.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// ListUsers returns one page plus the total row count for the filter.
	ListUsers(ctx context.Context, p ListUsersParams) ([]domain.User, int, error)

	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser mutates name, email, and status.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdateLastLogin is written by the login protocol on success only.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// UpdatePasswordHash sets the password hash and passwordLastChanged.
	UpdatePasswordHash(ctx context.Context, userID, newHash string, at time.Time) error

	DeleteUser(ctx context.Context, userID string) error
}

// ListApplicationsParams filters and paginates the application registry.
type ListApplicationsParams struct {
	Page   int
	Limit  int
	Search string
	Status string
}

type Applications interface {
	GetApplicationByID(ctx context.Context, id string) (domain.Application, error)

	// GetApplicationByClientID resolves the public client identifier used
	// in login requests.
	GetApplicationByClientID(ctx context.Context, clientID string) (domain.Application, error)

	ListApplications(ctx context.Context, p ListApplicationsParams) ([]domain.Application, int, error)

	CreateApplication(ctx context.Context, a domain.Application) error

	// UpdateApplication mutates everything except clientId (immutable) and
	// the secret hash (rotation only).
	UpdateApplication(ctx context.Context, a domain.Application) error

	UpdateClientSecretHash(ctx context.Context, id, secretHash string) error

	// DeleteApplication soft-deletes; the row stays for audit joins.
	DeleteApplication(ctx context.Context, id string) error

	// AllowsOrigin reports whether any non-deleted application registered
	// the (normalized) origin in its CORS allow-list.
	AllowsOrigin(ctx context.Context, origin string) (bool, error)

	// IsUserAssigned is the authorization gate checked at login.
	IsUserAssigned(ctx context.Context, userID, applicationID string) (bool, error)

	AssignUser(ctx context.Context, userID, applicationID string, at time.Time) error
	UnassignUser(ctx context.Context, userID, applicationID string) error

	ListApplicationUsers(ctx context.Context, applicationID string) ([]domain.ApplicationAssignment, error)
	ListUserApplications(ctx context.Context, userID string) ([]domain.ApplicationAssignment, error)
}

type Roles interface {
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	CreateRole(ctx context.Context, r domain.Role) error
	DeleteRole(ctx context.Context, roleID string) error

	// ListUserRoles returns the user's assignments with role names
	// denormalized, ordered by assignment time.
	ListUserRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error)

	AssignRole(ctx context.Context, userID, roleID string, at time.Time) error
	UnassignRole(ctx context.Context, userID, roleID string) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new ledger row. The opaque value never
	// reaches the store; rows are keyed by fingerprint.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken stamps revoked_at=now on the row with the given
	// fingerprint. Used by logout.
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllLive stamps revoked_at=now on every unrevoked, unexpired
	// token for the (user, application) pair. Run inside the login
	// transaction right before issuing the replacement.
	RevokeAllLive(ctx context.Context, userID, applicationID string, now time.Time) error

	// RevokeAllLiveForUser revokes across all applications, used on
	// password change.
	RevokeAllLiveForUser(ctx context.Context, userID string, now time.Time) error

	// ListUserApplicationTokens returns every ledger row for the pair,
	// newest first. Revoked rows are retained for audit.
	ListUserApplicationTokens(ctx context.Context, userID, applicationID string) ([]domain.RefreshToken, error)

	// DeleteExpiredBefore is housekeeping: drops rows whose expiry passed
	// before the cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error
}

type AuditLogs interface {
	// CreateAuditLog appends an entry. The table is append-only.
	CreateAuditLog(ctx context.Context, e domain.AuditLogEntry) error

	// CountFailedLogins counts login_failed entries for an IP since the
	// given instant, backing the login admission control.
	CountFailedLogins(ctx context.Context, ipAddress string, since time.Time) (int, error)

	// ListRecent returns the newest entries for the activity surface.
	ListRecent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)
}
