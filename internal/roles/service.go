package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/session"
	"github.com/washpark/washpark/internal/shared"
)

// PermissionChecker answers whether the actor currently holds a permission.
// Backed by the actor session store.
type PermissionChecker interface {
	Allowed(ctx context.Context, actor shared.Actor, permission string) bool
}

// Invalidator is notified after any mutation that changes a role's effective
// permissions or availability, so cached actor sessions stop authorizing
// against stale data before the call returns.
type Invalidator interface {
	InvalidateRole(ctx context.Context, roleID int64) error
}

// Sweeper schedules background garbage collection of session records made
// stale by an invalidation. Best effort; correctness never depends on it.
type Sweeper interface {
	EnqueueSessionSweep(ctx context.Context, roleID int64) error
}

// Service implements the role registry and the override store. All mutation
// paths enforce the level-ceiling rule: an actor may only create, edit or
// delete roles with a level strictly below their own, root excepted.
type Service struct {
	repo        RepositoryPort
	checker     PermissionChecker
	invalidator Invalidator
	sweeper     Sweeper
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService builds a Service instance. Sweeper may be nil.
func NewService(repo RepositoryPort, checker PermissionChecker, invalidator Invalidator, sweeper Sweeper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		checker:     checker,
		invalidator: invalidator,
		sweeper:     sweeper,
		logger:      logger,
		locks:       make(map[int64]*sync.Mutex),
	}
}

// roleLock serializes mutations per role so two concurrent escalation
// attempts cannot both pass the level check against a stale level.
func (s *Service) roleLock(roleID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[roleID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roleID] = l
	}
	return l
}

// dropLock removes a deleted role's mutex so the map does not grow with
// every role ever created. Holders of the old mutex still serialize with
// each other; new callers race only on a role that no longer exists.
func (s *Service) dropLock(roleID int64) {
	s.mu.Lock()
	delete(s.locks, roleID)
	s.mu.Unlock()
}

// ListVisibleRoles returns all roles inside the actor's tenant scope,
// ordered by level descending with name as tiebreaker. Root sees every
// tenant's roles; everyone else sees global roles plus their own tenant's.
func (s *Service) ListVisibleRoles(ctx context.Context) ([]Role, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesView) {
		return nil, shared.ErrPermissionDenied
	}
	return s.repo.ListRoles(ctx, actor.TenantID, actor.IsRoot())
}

// CreateRole creates a tenant-scoped custom role derived from a base
// archetype. The new role is never a system role.
func (s *Service) CreateRole(ctx context.Context, input CreateInput) (Role, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return Role{}, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesManage) {
		return Role{}, shared.ErrPermissionDenied
	}

	archetype := authz.Archetype(strings.TrimSpace(input.Archetype))
	if !archetype.Valid() || archetype == authz.ArchetypeRoot {
		return Role{}, fmt.Errorf("%w: unknown archetype %q", shared.ErrNotFound, input.Archetype)
	}
	if err := s.checkLevelRange(actor, input.Level); err != nil {
		return Role{}, err
	}

	tenantID := actor.TenantID
	if actor.IsRoot() {
		tenantID = input.TenantID
	}

	role := Role{
		TenantID:    tenantID,
		Name:        normalizeName(input.Name),
		Description: strings.TrimSpace(input.Description),
		Archetype:   archetype,
		Level:       input.Level,
		IsSystem:    false,
		IsActive:    true,
	}
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("role created",
		slog.Int64("role_id", created.ID),
		slog.Int("level", created.Level),
		slog.Int64("actor_id", actor.StaffID))
	return created, nil
}

// UpdateRole patches a role. The level-ceiling guard applies to both the
// current and the new level value.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, patch UpdateInput) (Role, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return Role{}, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesManage) {
		return Role{}, shared.ErrPermissionDenied
	}

	lock := s.roleLock(roleID)
	lock.Lock()
	defer lock.Unlock()

	role, err := s.loadScoped(ctx, actor, roleID)
	if err != nil {
		return Role{}, err
	}
	if err := s.checkManageable(actor, role); err != nil {
		return Role{}, err
	}
	if role.IsSystem && (patch.Name != nil || patch.Level != nil) {
		return Role{}, shared.ErrImmutable
	}

	if patch.Name != nil {
		role.Name = normalizeName(*patch.Name)
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Level != nil {
		if err := s.checkLevelRange(actor, *patch.Level); err != nil {
			return Role{}, err
		}
		role.Level = *patch.Level
	}

	saved, err := s.repo.SaveRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, roleID)
	return saved, nil
}

// DeleteRole removes a custom role and cascades deletion of its overrides.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesManage) {
		return shared.ErrPermissionDenied
	}

	lock := s.roleLock(roleID)
	lock.Lock()
	defer lock.Unlock()

	role, err := s.loadScoped(ctx, actor, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return shared.ErrImmutable
	}
	if err := s.checkManageable(actor, role); err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, roleID)
	s.dropLock(roleID)
	s.logger.Info("role deleted", slog.Int64("role_id", roleID), slog.Int64("actor_id", actor.StaffID))
	return nil
}

// SetActive toggles whether the role is available for assignment.
// Deactivation tears down cached sessions holding the role.
func (s *Service) SetActive(ctx context.Context, roleID int64, active bool) (Role, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return Role{}, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesManage) {
		return Role{}, shared.ErrPermissionDenied
	}

	lock := s.roleLock(roleID)
	lock.Lock()
	defer lock.Unlock()

	role, err := s.loadScoped(ctx, actor, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.Archetype == authz.ArchetypeRoot {
		// Deactivating the apex role would lock the system out.
		return Role{}, shared.ErrImmutable
	}
	if err := s.checkManageable(actor, role); err != nil {
		return Role{}, err
	}
	if role.IsActive == active {
		return role, nil
	}
	role.IsActive = active
	saved, err := s.repo.SaveRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, roleID)
	return saved, nil
}

// GetOverrides returns the explicit override rows for a role.
func (s *Service) GetOverrides(ctx context.Context, roleID int64) ([]Override, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesView) {
		return nil, shared.ErrPermissionDenied
	}
	if _, err := s.loadScoped(ctx, actor, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListOverrides(ctx, roleID)
}

// ApplyOverrideChanges applies a batch of grant/revoke/revert decisions for
// one role. The batch is atomic: a failing entry aborts the whole set.
func (s *Service) ApplyOverrideChanges(ctx context.Context, roleID int64, changes OverrideChanges) error {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return err
	}
	if !s.checker.Allowed(ctx, actor, authz.PermRolesManage) {
		return shared.ErrPermissionDenied
	}
	for key := range changes {
		if !authz.Known(key) {
			return fmt.Errorf("%w: permission %q", shared.ErrNotFound, key)
		}
	}

	lock := s.roleLock(roleID)
	lock.Lock()
	defer lock.Unlock()

	role, err := s.loadScoped(ctx, actor, roleID)
	if err != nil {
		return err
	}
	if err := s.checkManageable(actor, role); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	if err := s.repo.ApplyOverrides(ctx, roleID, changes); err != nil {
		return err
	}
	s.invalidate(ctx, roleID)
	return nil
}

// RoleRecord loads a role without actor gating, in the shape the session
// store consumes. Login and session rebuild run before any actor context
// exists, so this path is deliberately unguarded.
func (s *Service) RoleRecord(ctx context.Context, roleID int64) (session.RoleRecord, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return session.RoleRecord{}, err
	}
	return session.RoleRecord{
		ID:        role.ID,
		TenantID:  role.TenantID,
		Archetype: role.Archetype,
		Level:     role.Level,
		Active:    role.IsActive,
	}, nil
}

// RoleOverrides loads a role's override map without actor gating.
func (s *Service) RoleOverrides(ctx context.Context, roleID int64) (authz.Overrides, error) {
	rows, err := s.repo.ListOverrides(ctx, roleID)
	if err != nil {
		return nil, err
	}
	overrides := make(authz.Overrides, len(rows))
	for _, row := range rows {
		overrides[row.PermissionKey] = row.Granted
	}
	return overrides, nil
}

// loadScoped fetches a role and enforces tenant visibility. Roles outside
// the actor's scope report ErrNotFound so other tenants' role IDs stay
// unguessable.
func (s *Service) loadScoped(ctx context.Context, actor shared.Actor, roleID int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.TenantID == nil || actor.IsRoot() {
		return role, nil
	}
	if !actor.SameTenant(role.TenantID) {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

// checkManageable enforces the level ceiling and the global-role boundary on
// an existing role.
func (s *Service) checkManageable(actor shared.Actor, role Role) error {
	if actor.IsRoot() {
		return nil
	}
	if role.TenantID == nil {
		// Global roles affect every tenant; only root mutates them.
		return shared.ErrPermissionDenied
	}
	if role.Level >= actor.Level {
		return shared.ErrPermissionDenied
	}
	return nil
}

// checkLevelRange validates a requested level against the actor's ceiling.
func (s *Service) checkLevelRange(actor shared.Actor, level int) error {
	if level < 1 || level > authz.RootLevel {
		return shared.ErrInvalidLevel
	}
	if actor.IsRoot() {
		return nil
	}
	if level >= actor.Level {
		return shared.ErrInvalidLevel
	}
	return nil
}

// invalidate bumps the role epoch synchronously and schedules a sweep.
func (s *Service) invalidate(ctx context.Context, roleID int64) {
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateRole(ctx, roleID); err != nil {
			s.logger.Error("invalidate role sessions", slog.Int64("role_id", roleID), slog.Any("error", err))
		}
	}
	if s.sweeper != nil {
		if err := s.sweeper.EnqueueSessionSweep(ctx, roleID); err != nil {
			s.logger.Warn("enqueue session sweep", slog.Int64("role_id", roleID), slog.Any("error", err))
		}
	}
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
