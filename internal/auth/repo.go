package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/washpark/washpark/internal/shared"
)

// Repository defines the persistence contract for authentication.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Staff, error)
}

// PGRepository provides PostgreSQL backed staff lookups.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an active-or-not staff record by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, password_hash, role_id, is_active, created_at, updated_at
		FROM staff WHERE lower(email) = lower($1)`, email)
	var staff Staff
	if err := row.Scan(&staff.ID, &staff.TenantID, &staff.Email, &staff.Name, &staff.PasswordHash,
		&staff.RoleID, &staff.IsActive, &staff.CreatedAt, &staff.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &staff, nil
}
