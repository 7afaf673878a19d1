package domain

import "time"

// UserStatus gates whether a user may authenticate at all.
type UserStatus string

const (
	UserStatusActive   UserStatus = "Active"
	UserStatusInactive UserStatus = "Inactive"
	UserStatusLocked   UserStatus = "Locked"
	UserStatusPending  UserStatus = "Pending"
)

// ValidUserStatus reports whether s is one of the known user statuses.
func ValidUserStatus(s string) bool {
	switch UserStatus(s) {
	case UserStatusActive, UserStatusInactive, UserStatusLocked, UserStatusPending:
		return true
	}
	return false
}

type User struct {
	ID                  string
	Name                string
	Email               string // unique, looked up case-insensitively
	PasswordHash        string // argon2id encoded, never serialized
	Status              UserStatus
	LastLogin           *time.Time
	PasswordLastChanged *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RoleAssignment joins a user to a role. The role name is denormalized on
// read so callers building a principal never re-interpret raw rows.
type RoleAssignment struct {
	UserID     string    `json:"userId"`
	RoleID     string    `json:"roleId"`
	RoleName   string    `json:"roleName"`
	AssignedAt time.Time `json:"assignedAt"`
}

// ApplicationAssignment is the authorization link that must exist for a user
// to log in to a given application.
type ApplicationAssignment struct {
	UserID          string    `json:"userId"`
	ApplicationID   string    `json:"applicationId"`
	ApplicationName string    `json:"applicationName"`
	AssignedAt      time.Time `json:"assignedAt"`
}
