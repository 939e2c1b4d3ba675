package authz

// Overrides maps a permission key to an explicit grant decision for one
// role. Presence of a key overrides the archetype default; absence falls
// back to the default. The distinction matters: deleting an override
// restores whatever the archetype default is, an explicit false pins denial.
type Overrides map[string]bool

// RoleView is the minimal role shape the engine consults. Callers build it
// from a registry role or a cached session.
type RoleView struct {
	Archetype Archetype
	Active    bool
}

// Resolve answers whether the permission is allowed for the role. It is
// deterministic, side-effect-free and never errors: unknown permissions,
// unknown archetypes and inactive roles all resolve to false so UI gating
// stays fail-safe.
func Resolve(permission string, role RoleView, overrides Overrides) bool {
	if !role.Active || !role.Archetype.Valid() || !Known(permission) {
		return false
	}
	if granted, ok := overrides[permission]; ok {
		return granted
	}
	return DefaultGrant(role.Archetype, permission)
}

// ResolveAny reports whether any of the permissions resolves true.
// An empty list resolves false.
func ResolveAny(permissions []string, role RoleView, overrides Overrides) bool {
	for _, p := range permissions {
		if Resolve(p, role, overrides) {
			return true
		}
	}
	return false
}

// ResolveAll reports whether every permission resolves true.
// An empty list resolves true (vacuous truth).
func ResolveAll(permissions []string, role RoleView, overrides Overrides) bool {
	for _, p := range permissions {
		if !Resolve(p, role, overrides) {
			return false
		}
	}
	return true
}

// EffectivePermissions materializes the granted permission keys for a role
// in one pass over the catalog. Used to build actor sessions.
func EffectivePermissions(role RoleView, overrides Overrides) []string {
	granted := make([]string, 0, len(catalog))
	for _, e := range catalog {
		if Resolve(e.key, role, overrides) {
			granted = append(granted, e.key)
		}
	}
	return granted
}
