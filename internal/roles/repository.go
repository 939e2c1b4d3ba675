package roles

import "context"

// RepositoryPort defines the persistence contract for the role registry and
// the override store. Implementations report missing rows with
// shared.ErrNotFound and name collisions with shared.ErrDuplicate.
type RepositoryPort interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	// ListRoles returns global roles plus the given tenant's roles. A nil
	// tenantID with allTenants false returns only global roles; allTenants
	// true returns every role in the system.
	ListRoles(ctx context.Context, tenantID *int64, allTenants bool) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	SaveRole(ctx context.Context, role Role) (Role, error)
	// DeleteRole removes the role and cascades deletion of its override
	// rows in the same transaction.
	DeleteRole(ctx context.Context, id int64) error

	ListOverrides(ctx context.Context, roleID int64) ([]Override, error)
	// ApplyOverrides applies the whole change set atomically: either every
	// upsert/delete lands or none does.
	ApplyOverrides(ctx context.Context, roleID int64, changes OverrideChanges) error
}
