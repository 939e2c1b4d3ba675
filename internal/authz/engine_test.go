package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFallsBackToArchetypeDefault(t *testing.T) {
	for _, arch := range Archetypes() {
		role := RoleView{Archetype: arch, Active: true}
		for _, perm := range Catalog() {
			require.Equal(t, DefaultGrant(arch, perm.Key), Resolve(perm.Key, role, nil),
				"archetype %s permission %s", arch, perm.Key)
		}
	}
}

func TestResolveOverrideWinsOverDefault(t *testing.T) {
	cashier := RoleView{Archetype: ArchetypeCashier, Active: true}

	// Archetype default grants manage_cash to cashiers; an explicit revoke
	// must win.
	require.True(t, DefaultGrant(ArchetypeCashier, PermAccountingManageCash))
	require.False(t, Resolve(PermAccountingManageCash, cashier, Overrides{PermAccountingManageCash: false}))

	// And an explicit grant must win over a default denial.
	require.False(t, DefaultGrant(ArchetypeCashier, PermReportsView))
	require.True(t, Resolve(PermReportsView, cashier, Overrides{PermReportsView: true}))
}

func TestResolveDenyByDefault(t *testing.T) {
	active := RoleView{Archetype: ArchetypeAdmin, Active: true}
	inactive := RoleView{Archetype: ArchetypeAdmin, Active: false}
	unknown := RoleView{Archetype: Archetype("janitor"), Active: true}

	require.False(t, Resolve("accounting.does_not_exist", active, nil))
	require.False(t, Resolve(PermRolesView, inactive, nil))
	require.False(t, Resolve(PermRolesView, unknown, nil))
	// Overrides cannot resurrect an unknown permission key.
	require.False(t, Resolve("bogus.key", active, Overrides{"bogus.key": true}))
}

func TestResolveAnyAllBoundaries(t *testing.T) {
	role := RoleView{Archetype: ArchetypeOperator, Active: true}

	require.False(t, ResolveAny(nil, role, nil))
	require.True(t, ResolveAll(nil, role, nil))

	perms := []string{PermServicesViewCatalog, PermRolesManage}
	require.True(t, ResolveAny(perms, role, nil))
	require.False(t, ResolveAll(perms, role, nil))
}

func TestRootGrantedEverythingByDefault(t *testing.T) {
	root := RoleView{Archetype: ArchetypeRoot, Active: true}
	for _, perm := range Catalog() {
		require.True(t, Resolve(perm.Key, root, nil), perm.Key)
	}
}

func TestEffectivePermissionsAppliesOverrides(t *testing.T) {
	cashier := RoleView{Archetype: ArchetypeCashier, Active: true}
	effective := EffectivePermissions(cashier, Overrides{
		PermAccountingManageCash: false,
		PermReportsView:          true,
	})

	set := make(map[string]struct{}, len(effective))
	for _, p := range effective {
		set[p] = struct{}{}
	}
	require.NotContains(t, set, PermAccountingManageCash)
	require.Contains(t, set, PermReportsView)
	require.Contains(t, set, PermAccountingCloseShift)
}

func TestCatalogGroupedByModule(t *testing.T) {
	groups := CatalogByModule()
	require.NotEmpty(t, groups)

	seen := make(map[string]struct{})
	total := 0
	for _, g := range groups {
		_, dup := seen[g.Module]
		require.False(t, dup, "module %s listed twice", g.Module)
		seen[g.Module] = struct{}{}
		require.NotEmpty(t, g.Permissions)
		for _, p := range g.Permissions {
			require.Equal(t, g.Module, p.Module)
			require.Equal(t, g.Module+"."+p.Action, p.Key)
		}
		total += len(g.Permissions)
	}
	require.Equal(t, len(Catalog()), total)
}

func TestArchetypeLevelsAreStrictlyOrderedUnderRoot(t *testing.T) {
	require.Equal(t, RootLevel, ArchetypeRoot.DefaultLevel())
	for _, arch := range Archetypes() {
		if arch == ArchetypeRoot {
			continue
		}
		level := arch.DefaultLevel()
		require.Greater(t, level, 0)
		require.Less(t, level, RootLevel)
	}
}
