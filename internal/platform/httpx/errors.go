package httpx

import (
	"errors"
	"net/http"

	"github.com/washpark/washpark/internal/shared"
)

// RespondError maps domain errors to HTTP problem responses. Tenant-scope
// violations arrive as shared.ErrNotFound and are reported as such, so the
// response never leaks whether a role exists in another tenant.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	case errors.Is(err, shared.ErrStaleSession):
		Problem(w, http.StatusUnauthorized, "Stale Session", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrImmutable):
		Problem(w, http.StatusConflict, "Immutable", err.Error())
	case errors.Is(err, shared.ErrInvalidLevel):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Level", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
