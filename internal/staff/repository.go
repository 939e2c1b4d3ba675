package staff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/washpark/washpark/internal/shared"
)

// RepositoryPort defines data access methods for the staff directory.
type RepositoryPort interface {
	ListMembers(ctx context.Context, tenantID *int64, allTenants bool) ([]Member, error)
	GetMember(ctx context.Context, id int64) (Member, error)
	SetRole(ctx context.Context, id, roleID int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `id, tenant_id, email, name, role_id, is_active, created_at, updated_at`

// ListMembers returns staff ordered by name.
func (r *Repository) ListMembers(ctx context.Context, tenantID *int64, allTenants bool) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM staff WHERE tenant_id = $1 ORDER BY name ASC`
	args := []any{tenantID}
	if allTenants {
		query = `SELECT ` + memberColumns + ` FROM staff ORDER BY name ASC`
		args = nil
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// GetMember fetches a staff record by ID.
func (r *Repository) GetMember(ctx context.Context, id int64) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM staff WHERE id = $1`, id)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return member, nil
}

// SetRole updates the member's role assignment.
func (r *Repository) SetRole(ctx context.Context, id, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE staff SET role_id = $2, updated_at = now() WHERE id = $1`, id, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive toggles the member's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE staff SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.TenantID, &m.Email, &m.Name, &m.RoleID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Member{}, err
	}
	return m, nil
}
