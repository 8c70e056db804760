package rbac

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/shared"
)

// PermissionsHandler serves the permission catalogue for the admin UI.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView))
		r.Get("/", h.listPermissions)
	})
}

// PermissionGroup is one module section of the catalogue.
type PermissionGroup struct {
	Module      string            `json:"module"`
	Label       string            `json:"label"`
	Permissions []PermissionEntry `json:"permissions"`
}

// PermissionEntry is a single catalogue row.
type PermissionEntry struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": GroupPermissions(perms)})
}

// GroupPermissions groups stored permissions by module, keeping only codes the
// registry knows about.
func GroupPermissions(perms []Permission) []PermissionGroup {
	index := make(map[string]int)
	var groups []PermissionGroup
	for _, p := range perms {
		if !shared.IsKnownPermission(p.Code) {
			continue
		}
		i, ok := index[p.Module]
		if !ok {
			i = len(groups)
			index[p.Module] = i
			groups = append(groups, PermissionGroup{Module: p.Module, Label: shared.ModuleLabel(p.Module)})
		}
		groups[i].Permissions = append(groups[i].Permissions, PermissionEntry{ID: p.ID, Code: p.Code, Label: p.Label})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Module < groups[j].Module })
	for _, g := range groups {
		sort.Slice(g.Permissions, func(i, j int) bool { return g.Permissions[i].Code < g.Permissions[j].Code })
	}
	return groups
}
