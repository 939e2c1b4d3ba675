package roles

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/shared"
)

type memoryRepo struct {
	roles     map[int64]Role
	overrides map[int64]map[string]bool
	nextID    int64

	// failOnKey aborts ApplyOverrides when this permission key is reached,
	// simulating a mid-batch store failure.
	failOnKey string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:     make(map[int64]Role),
		overrides: make(map[int64]map[string]bool),
	}
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) ListRoles(ctx context.Context, tenantID *int64, allTenants bool) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if allTenants || role.TenantID == nil || (tenantID != nil && role.TenantID != nil && *role.TenantID == *tenantID) {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Name == role.Name && sameTenantPtr(existing.TenantID, role.TenantID) {
			return Role{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	role.ID = r.nextID
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) SaveRole(ctx context.Context, role Role) (Role, error) {
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.roles, id)
	delete(r.overrides, id)
	return nil
}

func (r *memoryRepo) ListOverrides(ctx context.Context, roleID int64) ([]Override, error) {
	var out []Override
	for key, granted := range r.overrides[roleID] {
		out = append(out, Override{RoleID: roleID, PermissionKey: key, Granted: granted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionKey < out[j].PermissionKey })
	return out, nil
}

func (r *memoryRepo) ApplyOverrides(ctx context.Context, roleID int64, changes OverrideChanges) error {
	// Stage onto a copy so a mid-batch failure leaves prior state intact,
	// mirroring the transactional SQL implementation.
	staged := make(map[string]bool, len(r.overrides[roleID]))
	for k, v := range r.overrides[roleID] {
		staged[k] = v
	}
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == r.failOnKey {
			return errors.New("storage failure")
		}
		if changes[key] == nil {
			delete(staged, key)
			continue
		}
		staged[key] = *changes[key]
	}
	r.overrides[roleID] = staged
	return nil
}

func sameTenantPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// allowAll grants every permission check; permission gating is exercised
// separately via denyAll.
type allowAll struct{}

func (allowAll) Allowed(ctx context.Context, actor shared.Actor, permission string) bool { return true }

type denyAll struct{}

func (denyAll) Allowed(ctx context.Context, actor shared.Actor, permission string) bool { return false }

type recordingInvalidator struct {
	roleIDs []int64
}

func (r *recordingInvalidator) InvalidateRole(ctx context.Context, roleID int64) error {
	r.roleIDs = append(r.roleIDs, roleID)
	return nil
}

func tenant(id int64) *int64 { return &id }

func actorCtx(actor shared.Actor) context.Context {
	return shared.ContextWithActor(context.Background(), actor)
}

func rootActor() shared.Actor {
	return shared.Actor{StaffID: 1, RoleID: 1, Level: shared.RootLevel, Archetype: string(authz.ArchetypeRoot)}
}

func adminActor(tenantID int64) shared.Actor {
	return shared.Actor{StaffID: 2, RoleID: 2, TenantID: tenant(tenantID), Level: 90, Archetype: string(authz.ArchetypeAdmin)}
}

func newTestService(repo *memoryRepo) (*Service, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	return NewService(repo, allowAll{}, inv, nil, nil), inv
}

func seedRole(repo *memoryRepo, role Role) Role {
	repo.nextID++
	role.ID = repo.nextID
	repo.roles[role.ID] = role
	return role
}

func TestCreateRoleLevelCeiling(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	// An admin at level 90 cannot mint a level 95 role.
	_, err := svc.CreateRole(ctx, CreateInput{Name: "Regional Lead", Archetype: "supervisor", Level: 95})
	require.ErrorIs(t, err, shared.ErrInvalidLevel)

	// Nor one at their own level.
	_, err = svc.CreateRole(ctx, CreateInput{Name: "Shadow Admin", Archetype: "admin", Level: 90})
	require.ErrorIs(t, err, shared.ErrInvalidLevel)

	role, err := svc.CreateRole(ctx, CreateInput{Name: "Shift Lead", Archetype: "supervisor", Level: 65})
	require.NoError(t, err)
	require.False(t, role.IsSystem)
	require.True(t, role.IsActive)
	require.Equal(t, int64(1), *role.TenantID)
}

func TestCreateRoleRootMayUseFullRange(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(rootActor())

	role, err := svc.CreateRole(ctx, CreateInput{TenantID: tenant(7), Name: "Franchise Admin", Archetype: "admin", Level: 99})
	require.NoError(t, err)
	require.Equal(t, 99, role.Level)

	_, err = svc.CreateRole(ctx, CreateInput{Name: "Over Apex", Archetype: "admin", Level: 101})
	require.ErrorIs(t, err, shared.ErrInvalidLevel)
}

func TestCreateRoleRejectsRootArchetype(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.CreateRole(actorCtx(rootActor()), CreateInput{Name: "Second Root", Archetype: "root", Level: 50})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRoleRequiresManagePermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, denyAll{}, &recordingInvalidator{}, nil, nil)

	_, err := svc.CreateRole(actorCtx(adminActor(1)), CreateInput{Name: "Shift Lead", Archetype: "supervisor", Level: 50})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCreateRoleRequiresActor(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.CreateRole(context.Background(), CreateInput{Name: "Shift Lead", Archetype: "supervisor", Level: 50})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestUpdateRoleEscalationGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc, inv := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 60, IsActive: true})
	peer := seedRole(repo, Role{TenantID: tenant(1), Name: "Co Admin", Archetype: authz.ArchetypeAdmin, Level: 90, IsActive: true})

	// New level must stay under the actor's ceiling.
	level := 92
	_, err := svc.UpdateRole(ctx, role.ID, UpdateInput{Level: &level})
	require.ErrorIs(t, err, shared.ErrInvalidLevel)

	// Roles at or above the actor's level cannot be edited at all.
	desc := "renamed"
	_, err = svc.UpdateRole(ctx, peer.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	level = 55
	updated, err := svc.UpdateRole(ctx, role.ID, UpdateInput{Level: &level})
	require.NoError(t, err)
	require.Equal(t, 55, updated.Level)
	require.Equal(t, []int64{role.ID}, inv.roleIDs)
}

func TestUpdateRoleSystemImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	system := seedRole(repo, Role{Name: "Supervisor", Archetype: authz.ArchetypeSupervisor, Level: 70, IsSystem: true, IsActive: true})

	name := "Renamed"
	_, err := svc.UpdateRole(actorCtx(rootActor()), system.ID, UpdateInput{Name: &name})
	require.ErrorIs(t, err, shared.ErrImmutable)

	// Description-only edits stay allowed.
	desc := "Branch supervisors"
	updated, err := svc.UpdateRole(actorCtx(rootActor()), system.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, desc, updated.Description)
}

func TestNonRootCannotMutateGlobalRoles(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	global := seedRole(repo, Role{Name: "Operator", Archetype: authz.ArchetypeOperator, Level: 30, IsSystem: true, IsActive: true})

	desc := "changed"
	_, err := svc.UpdateRole(ctx, global.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	err = svc.ApplyOverrideChanges(ctx, global.ID, OverrideChanges{authz.PermReportsView: boolPtr(true)})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCrossTenantRoleReportsNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	other := seedRole(repo, Role{TenantID: tenant(2), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	desc := "peek"
	_, err := svc.UpdateRole(ctx, other.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetOverrides(ctx, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.DeleteRole(ctx, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleCascadesOverrides(t *testing.T) {
	repo := newMemoryRepo()
	svc, inv := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})
	repo.overrides[role.ID] = map[string]bool{authz.PermReportsView: true}

	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	overrides, err := repo.ListOverrides(ctx, role.ID)
	require.NoError(t, err)
	require.Empty(t, overrides)
	require.Contains(t, inv.roleIDs, role.ID)
}

func TestDeleteRoleReleasesLock(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	_, err := svc.SetActive(ctx, role.ID, false)
	require.NoError(t, err)
	require.Contains(t, svc.locks, role.ID)

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	require.NotContains(t, svc.locks, role.ID)
}

func TestDeleteSystemRoleImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	system := seedRole(repo, Role{Name: "Cashier", Archetype: authz.ArchetypeCashier, Level: 50, IsSystem: true, IsActive: true})

	err := svc.DeleteRole(actorCtx(rootActor()), system.ID)
	require.ErrorIs(t, err, shared.ErrImmutable)
	require.Contains(t, repo.roles, system.ID)
}

func TestApplyOverridesAtomicity(t *testing.T) {
	repo := newMemoryRepo()
	svc, inv := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	// Keys apply in sorted order; failing the last one must leave the first
	// two unpersisted.
	repo.failOnKey = authz.PermServicesManageCatalog
	err := svc.ApplyOverrideChanges(ctx, role.ID, OverrideChanges{
		authz.PermAccountingManageCash:  boolPtr(false),
		authz.PermReportsView:           boolPtr(true),
		authz.PermServicesManageCatalog: boolPtr(true),
	})
	require.Error(t, err)

	overrides, listErr := repo.ListOverrides(ctx, role.ID)
	require.NoError(t, listErr)
	require.Empty(t, overrides)
	require.Empty(t, inv.roleIDs, "failed batch must not invalidate sessions")

	repo.failOnKey = ""
	err = svc.ApplyOverrideChanges(ctx, role.ID, OverrideChanges{
		authz.PermAccountingManageCash: boolPtr(false),
		authz.PermReportsView:          boolPtr(true),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{role.ID}, inv.roleIDs)

	// nil reverts to the archetype default by deleting the row.
	err = svc.ApplyOverrideChanges(ctx, role.ID, OverrideChanges{authz.PermAccountingManageCash: nil})
	require.NoError(t, err)
	overrides, listErr = repo.ListOverrides(ctx, role.ID)
	require.NoError(t, listErr)
	require.Len(t, overrides, 1)
	require.Equal(t, authz.PermReportsView, overrides[0].PermissionKey)
}

func TestApplyOverridesRejectsUnknownPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	err := svc.ApplyOverrideChanges(ctx, role.ID, OverrideChanges{"bogus.key": boolPtr(true)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetActiveInvalidatesSessions(t *testing.T) {
	repo := newMemoryRepo()
	svc, inv := newTestService(repo)
	ctx := actorCtx(adminActor(1))

	role := seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	updated, err := svc.SetActive(ctx, role.ID, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, []int64{role.ID}, inv.roleIDs)

	// No-op toggles do not invalidate again.
	_, err = svc.SetActive(ctx, role.ID, false)
	require.NoError(t, err)
	require.Len(t, inv.roleIDs, 1)
}

func TestSetActiveRootRoleImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	apex := seedRole(repo, Role{Name: "Owner", Archetype: authz.ArchetypeRoot, Level: shared.RootLevel, IsSystem: true, IsActive: true})

	_, err := svc.SetActive(actorCtx(rootActor()), apex.ID, false)
	require.ErrorIs(t, err, shared.ErrImmutable)
}

func TestListVisibleRolesScoping(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	seedRole(repo, Role{Name: "Admin", Archetype: authz.ArchetypeAdmin, Level: 90, IsSystem: true, IsActive: true})
	seedRole(repo, Role{TenantID: tenant(1), Name: "Shift Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})
	seedRole(repo, Role{TenantID: tenant(2), Name: "Other Lead", Archetype: authz.ArchetypeSupervisor, Level: 50, IsActive: true})

	visible, err := svc.ListVisibleRoles(actorCtx(adminActor(1)))
	require.NoError(t, err)
	require.Len(t, visible, 2)
	// Ordered by level descending.
	require.Equal(t, "Admin", visible[0].Name)
	require.Equal(t, "Shift Lead", visible[1].Name)

	all, err := svc.ListVisibleRoles(actorCtx(rootActor()))
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func boolPtr(b bool) *bool { return &b }
