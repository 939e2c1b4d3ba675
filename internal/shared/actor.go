package shared

import "context"

// RootLevel is the unique apex privilege level held only by the root role.
const RootLevel = 100

// Actor carries the resolved identity attached to every request: the staff
// member, their role, and the tenant scope the role grants. A nil TenantID
// marks the tenant-less root actor who sees every tenant.
type Actor struct {
	StaffID   int64
	RoleID    int64
	TenantID  *int64
	Archetype string
	Level     int
	SessionID string
}

// IsRoot reports whether the actor holds the apex root role. Only the root
// role may carry RootLevel; the registry enforces that ceiling on every
// mutation path.
func (a Actor) IsRoot() bool {
	return a.Level == RootLevel
}

// SameTenant reports whether the given tenant falls inside the actor's
// scope. Root is in scope everywhere.
func (a Actor) SameTenant(tenantID *int64) bool {
	if a.IsRoot() {
		return true
	}
	if tenantID == nil {
		return a.TenantID == nil
	}
	return a.TenantID != nil && *a.TenantID == *tenantID
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return value
// is false when the request carries no authenticated actor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// RequireActor extracts the actor or fails with ErrUnauthenticated. Mutation
// entry points call this before touching the registry.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, ErrUnauthenticated
	}
	return actor, nil
}
