package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/xhifi/brainloggers-backend-sub001/internal/audit"
	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, auth.ResourceRoles, auth.ActionManage); !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "role name is required")
		return
	}
	role, err := a.roles.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// the no-expiry name-to-id layer may hold entries for this name
	a.resolver.InvalidateAll(r.Context())
	_ = audit.LogEvent(r.Context(), "roles.create", map[string]any{"role_id": role.ID, "name": role.Name})
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"createdAt":   role.CreatedAt,
	})
}

// handleRoleResource dispatches /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	roleID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || roleID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	if _, ok := a.requirePermission(w, r, auth.ResourceRoles, auth.ActionManage); !ok {
		return
	}
	var req struct {
		Permissions []struct {
			Resource string `json:"resource"`
			Action   string `json:"action"`
		} `json:"permissions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms := make([]auth.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if strings.TrimSpace(p.Resource) == "" || strings.TrimSpace(p.Action) == "" {
			writeError(w, r, http.StatusBadRequest, "permission resource and action are required")
			return
		}
		perms = append(perms, auth.Permission{Resource: p.Resource, Action: p.Action})
	}
	if err := a.roles.SetRolePermissions(r.Context(), roleID, perms); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// права роли изменились для всех её носителей
	a.resolver.InvalidateAll(r.Context())
	_ = audit.LogEvent(r.Context(), "roles.set_permissions", map[string]any{
		"role_id": roleID,
		"count":   len(perms),
	})
	writeJSON(w, http.StatusOK, map[string]any{"roleId": roleID, "permissions": len(perms)})
}

// handleUserRole grants or revokes a role for a user and invalidates the
// user's cached role and permission entries.
func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, targetID, rawRoleID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	roleID, err := strconv.ParseInt(rawRoleID, 10, 64)
	if err != nil || roleID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid role id")
		return
	}
	if _, ok := a.requirePermission(w, r, auth.ResourceRoles, auth.ActionManage); !ok {
		return
	}

	var event string
	if r.Method == http.MethodPost {
		err = a.roles.AssignRole(r.Context(), targetID, roleID)
		event = "roles.assign"
	} else {
		err = a.roles.RemoveRole(r.Context(), targetID, roleID)
		event = "roles.remove"
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.resolver.InvalidateUser(r.Context(), targetID)
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"target_id": targetID,
		"role_id":   roleID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"userId": targetID, "roleId": roleID})
}
