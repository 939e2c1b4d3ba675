package roles

import (
	"time"

	"github.com/washpark/washpark/internal/authz"
)

// Role represents a privilege grouping assignable to staff. System roles are
// the seeded archetype roles (global, one per archetype); custom roles are
// tenant-scoped and derive their permission defaults from a base archetype.
type Role struct {
	ID          int64           `json:"id"`
	TenantID    *int64          `json:"tenant_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Archetype   authz.Archetype `json:"archetype"`
	Level       int             `json:"level"`
	IsSystem    bool            `json:"is_system"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// View converts the role to the engine's read shape.
func (r Role) View() authz.RoleView {
	return authz.RoleView{Archetype: r.Archetype, Active: r.IsActive}
}

// Override is one explicit grant/revoke row for a (role, permission) pair.
// Absence of a row means the archetype default applies.
type Override struct {
	RoleID        int64  `json:"role_id"`
	PermissionKey string `json:"permission_key"`
	Granted       bool   `json:"granted"`
}

// CreateInput carries the fields for a new custom role.
type CreateInput struct {
	TenantID    *int64 `json:"tenant_id"`
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Archetype   string `json:"archetype" validate:"required"`
	Level       int    `json:"level" validate:"required,min=1,max=100"`
}

// UpdateInput patches an existing role. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=64"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	Level       *int    `json:"level" validate:"omitempty,min=1,max=100"`
}

// OverrideChanges maps permission keys to the desired explicit decision.
// A nil value deletes the override row, reverting that pair to the
// archetype default; true/false upserts an explicit row.
type OverrideChanges map[string]*bool
