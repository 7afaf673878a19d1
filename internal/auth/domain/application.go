package domain

import "time"

// ApplicationStatus is an administrative flag on the registry entry. It is
// surfaced by the registry API but does not gate the login protocol.
type ApplicationStatus string

const (
	ApplicationStatusActive      ApplicationStatus = "Active"
	ApplicationStatusInactive    ApplicationStatus = "Inactive"
	ApplicationStatusDevelopment ApplicationStatus = "Development"
)

// ValidApplicationStatus reports whether s is one of the known statuses.
func ValidApplicationStatus(s string) bool {
	switch ApplicationStatus(s) {
	case ApplicationStatusActive, ApplicationStatusInactive, ApplicationStatusDevelopment:
		return true
	}
	return false
}

// Application is a registered consumer of the auth service. ClientID is
// public, globally unique, and immutable after creation; rotation touches
// the secret hash only.
type Application struct {
	ID               string
	Name             string
	ClientID         string
	ClientSecretHash string // argon2id encoded, never serialized
	RedirectURIs     []string
	CORSOrigins      []string // normalized: lowercased, trimmed
	AccessTokenTTL   int      // minutes; 0 means the service default
	RefreshTokenTTL  int      // days; 0 means the service default
	Status           ApplicationStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}
