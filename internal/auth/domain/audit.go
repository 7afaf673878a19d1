package domain

import "time"

// Audit event names written by the auth core.
const (
	AuditLoginSuccess          = "login_success"
	AuditLoginSuccessWithState = "login_success_with_state"
	AuditLoginFailed           = "login_failed"
	AuditLoginDenied           = "login_denied"
	AuditAdminAction           = "admin_action"
)

// AuditLogEntry is an append-only record. Entries are never mutated or
// deleted by the core.
type AuditLogEntry struct {
	ID            string
	Event         string
	UserID        string // empty when the actor could not be resolved
	ApplicationID string
	Details       map[string]any // persisted as JSON
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}
