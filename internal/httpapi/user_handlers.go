package httpapi

import (
	"net/http"
	"strings"

	"github.com/xhifi/brainloggers-backend-sub001/internal/audit"
	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
)

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	u, err := a.users.Find(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	roles, err := a.resolver.RolesForUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"isVerified": u.IsVerified,
		"roles":      roles,
		"createdAt":  u.CreatedAt,
		"updatedAt":  u.UpdatedAt,
	})
}

// handleUserResource dispatches /v1/users/{id} and /v1/users/{id}/roles/{roleID}.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleUserUpdate(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRole(w, r, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

type userUpdateRequest struct {
	Email *string `json:"email"`
}

// handleUserUpdate applies a profile update after the two-stage permission
// check: coarse grant first, then the shared-role veto for cross-user edits.
func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request, targetID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	requesterID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.resolver.CanUpdateUser(r.Context(), requesterID, targetID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req userUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Update(r.Context(), targetID, auth.UserUpdate{Email: req.Email})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.update", map[string]any{"target_id": targetID})
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"isVerified": u.IsVerified,
		"updatedAt":  u.UpdatedAt,
	})
}
