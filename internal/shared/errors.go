package shared

import "errors"

var (
	// ErrUnauthenticated indicates no resolvable actor context on the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermissionDenied indicates the actor lacks rights or violates the level ceiling.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidLevel indicates a role level outside the range allowed for the actor.
	ErrInvalidLevel = errors.New("invalid role level")
	// ErrImmutable indicates an attempt to mutate a system role.
	ErrImmutable = errors.New("system role is immutable")
	// ErrNotFound indicates a resource missing or outside the actor's tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrStaleSession indicates a session used after an invalidating event.
	ErrStaleSession = errors.New("stale session")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
