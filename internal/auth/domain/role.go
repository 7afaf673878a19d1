package domain

import "time"

// Role names are matched case-sensitively by the admin audit layer.
const (
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "SuperAdmin"
)

type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions,omitempty"` // permission names, space-delimited in storage
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
