package authz

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/washpark/washpark/internal/platform/httpx"
)

// PermissionsHandler exposes the read-only permission catalog.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes. The caller wraps these in a
// roles.view guard; the catalog itself has no tenant dimension.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": CatalogByModule()})
}
