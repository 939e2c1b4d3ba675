package staff

import "time"

// Member is one staff record in the directory.
type Member struct {
	ID        int64     `json:"id"`
	TenantID  *int64    `json:"tenant_id,omitempty"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	RoleID    int64     `json:"role_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignRoleInput carries a role assignment request.
type AssignRoleInput struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}
