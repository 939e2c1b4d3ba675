package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/washpark/washpark/internal/session"
	"github.com/washpark/washpark/internal/shared"
)

// Service wraps authentication business rules and session issuance.
type Service struct {
	repo     Repository
	roles    session.RoleSource
	sessions *session.Store
}

// NewService constructs a new Service.
func NewService(repo Repository, roles session.RoleSource, sessions *session.Store) *Service {
	return &Service{repo: repo, roles: roles, sessions: sessions}
}

// Login validates credentials and issues an actor session. The role's
// active flag is checked synchronously here: a deactivated role never gets
// a valid session, there is no post-login grace window.
func (s *Service) Login(ctx context.Context, email, password string) (*session.ActorSession, error) {
	staff, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !staff.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	role, err := s.roles.RoleRecord(ctx, staff.RoleID)
	if err != nil || !role.Active {
		return nil, shared.ErrInvalidCredentials
	}
	overrides, err := s.roles.RoleOverrides(ctx, staff.RoleID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Create(ctx, staff.ID, role, overrides)
}

// Logout tears the session down.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(ctx, sessionID)
}
