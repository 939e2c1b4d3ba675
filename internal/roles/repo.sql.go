package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/platform/db"
	"github.com/washpark/washpark/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles and their
// permission overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, tenant_id, name, description, archetype, level, is_system, is_active, created_at, updated_at`

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns roles ordered by level descending, name ascending.
func (r *Repository) ListRoles(ctx context.Context, tenantID *int64, allTenants bool) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id IS NULL OR tenant_id = $1 ORDER BY level DESC, name ASC`
	args := []any{tenantID}
	if allTenants {
		query = `SELECT ` + roleColumns + ` FROM roles ORDER BY level DESC, name ASC`
		args = nil
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name, description, archetype, level, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+roleColumns,
		role.TenantID, role.Name, role.Description, string(role.Archetype), role.Level, role.IsSystem, role.IsActive)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return created, nil
}

// SaveRole updates mutable role fields.
func (r *Repository) SaveRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, level = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.Level, role.IsActive)
	saved, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, mapPgError(err)
	}
	return saved, nil
}

// DeleteRole removes the role and its override rows in one transaction.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ListOverrides returns all explicit override rows for a role.
func (r *Repository) ListOverrides(ctx context.Context, roleID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_key, granted FROM role_permissions
		WHERE role_id = $1 ORDER BY permission_key`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.RoleID, &o.PermissionKey, &o.Granted); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

// ApplyOverrides applies the change set inside a single transaction so a
// failing upsert aborts the whole batch.
func (r *Repository) ApplyOverrides(ctx context.Context, roleID int64, changes OverrideChanges) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for key, granted := range changes {
			if granted == nil {
				if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_key = $2`, roleID, key); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_key, granted)
				VALUES ($1, $2, $3)
				ON CONFLICT (role_id, permission_key) DO UPDATE SET granted = EXCLUDED.granted`,
				roleID, key, *granted); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var archetype string
	if err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &archetype,
		&role.Level, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Archetype = authz.Archetype(archetype)
	return role, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
