package auth

import "time"

// Staff is the authenticated party record used during login.
type Staff struct {
	ID           int64
	TenantID     *int64
	Email        string
	Name         string
	PasswordHash string
	RoleID       int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
