package staff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/session"
	"github.com/washpark/washpark/internal/shared"
)

// PermissionChecker answers whether the actor currently holds a permission.
type PermissionChecker interface {
	Allowed(ctx context.Context, actor shared.Actor, permission string) bool
}

// Invalidator tears down a staff member's cached sessions after their role
// assignment or active flag changes.
type Invalidator interface {
	InvalidateStaff(ctx context.Context, staffID int64) error
}

// Service handles staff directory business logic. It is the main caller of
// the role registry: assignments go through the same level ceiling and
// tenant scoping as role management itself.
type Service struct {
	repo        RepositoryPort
	roles       session.RoleSource
	checker     PermissionChecker
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles session.RoleSource, checker PermissionChecker, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, checker: checker, invalidator: invalidator, logger: logger}
}

// ListMembers returns staff inside the actor's tenant scope.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermStaffView) {
		return nil, shared.ErrPermissionDenied
	}
	return s.repo.ListMembers(ctx, actor.TenantID, actor.IsRoot())
}

// AssignRole changes a member's role. The role must be visible in the
// member's tenant scope and sit strictly below the actor's level unless the
// actor is root. The member's sessions are invalidated before returning.
func (s *Service) AssignRole(ctx context.Context, staffID, roleID int64) (Member, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return Member{}, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermStaffAssignRoles) {
		return Member{}, shared.ErrPermissionDenied
	}

	member, err := s.loadScoped(ctx, actor, staffID)
	if err != nil {
		return Member{}, err
	}

	role, err := s.roles.RoleRecord(ctx, roleID)
	if err != nil {
		return Member{}, err
	}
	// Cross-tenant roles are reported as missing, not forbidden.
	if role.TenantID != nil && !sameTenant(role.TenantID, member.TenantID) {
		return Member{}, shared.ErrNotFound
	}
	if !role.Active {
		return Member{}, fmt.Errorf("%w: role is inactive", shared.ErrPermissionDenied)
	}
	if !actor.IsRoot() && role.Level >= actor.Level {
		return Member{}, shared.ErrPermissionDenied
	}

	if err := s.repo.SetRole(ctx, staffID, roleID); err != nil {
		return Member{}, err
	}
	if err := s.invalidator.InvalidateStaff(ctx, staffID); err != nil {
		s.logger.Error("invalidate staff sessions", slog.Int64("staff_id", staffID), slog.Any("error", err))
	}
	member.RoleID = roleID
	s.logger.Info("role assigned",
		slog.Int64("staff_id", staffID),
		slog.Int64("role_id", roleID),
		slog.Int64("actor_id", actor.StaffID))
	return member, nil
}

// SetActive toggles a member's active flag. Deactivation invalidates their
// sessions immediately.
func (s *Service) SetActive(ctx context.Context, staffID int64, active bool) (Member, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return Member{}, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermStaffManage) {
		return Member{}, shared.ErrPermissionDenied
	}
	member, err := s.loadScoped(ctx, actor, staffID)
	if err != nil {
		return Member{}, err
	}
	if member.IsActive == active {
		return member, nil
	}
	if err := s.repo.SetActive(ctx, staffID, active); err != nil {
		return Member{}, err
	}
	if !active {
		if err := s.invalidator.InvalidateStaff(ctx, staffID); err != nil {
			s.logger.Error("invalidate staff sessions", slog.Int64("staff_id", staffID), slog.Any("error", err))
		}
	}
	member.IsActive = active
	return member, nil
}

// StaffRecord loads a member's current role assignment without actor
// gating, in the shape the session store consumes. Session rebuilds run
// before any actor context exists, so this path is deliberately unguarded.
func (s *Service) StaffRecord(ctx context.Context, staffID int64) (session.StaffRecord, error) {
	member, err := s.repo.GetMember(ctx, staffID)
	if err != nil {
		return session.StaffRecord{}, err
	}
	return session.StaffRecord{ID: member.ID, RoleID: member.RoleID, Active: member.IsActive}, nil
}

func (s *Service) loadScoped(ctx context.Context, actor shared.Actor, staffID int64) (Member, error) {
	member, err := s.repo.GetMember(ctx, staffID)
	if err != nil {
		return Member{}, err
	}
	if !actor.IsRoot() && !actor.SameTenant(member.TenantID) {
		return Member{}, shared.ErrNotFound
	}
	return member, nil
}

func sameTenant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
