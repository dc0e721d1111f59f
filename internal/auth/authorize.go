package auth

import "context"

// Resources and actions known to this core.
const (
	ResourceUsers = "users"
	ResourceRoles = "roles"

	ActionUpdateOwn = "update_own"
	ActionUpdateAny = "update_any"
	ActionManage    = "manage"
)

// Require resolves the requester's current permission map and checks the
// (resource, action) grant. The token's role snapshot is never consulted.
func (r *Resolver) Require(ctx context.Context, userID, resource, action string) error {
	perms, err := r.PermissionsForUser(ctx, userID)
	if err != nil {
		return err
	}
	if !perms.Allows(resource, action) {
		return ErrForbidden
	}
	return nil
}

// CanUpdateUser enforces the two-stage profile-update rule. Self-updates need
// the update_own grant. Cross-user updates need update_any, and are then
// vetoed when requester and target share at least one role; the coarse
// permission is checked before the relational veto is evaluated.
func (r *Resolver) CanUpdateUser(ctx context.Context, requesterID, targetID string) error {
	if requesterID == targetID {
		return r.Require(ctx, requesterID, ResourceUsers, ActionUpdateOwn)
	}
	if err := r.Require(ctx, requesterID, ResourceUsers, ActionUpdateAny); err != nil {
		return err
	}
	requesterRoles, err := r.RolesForUser(ctx, requesterID)
	if err != nil {
		return err
	}
	targetRoles, err := r.RolesForUser(ctx, targetID)
	if err != nil {
		return err
	}
	if sharesRole(requesterRoles, targetRoles) {
		return ErrForbidden
	}
	return nil
}

func sharesRole(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, role := range a {
		set[role] = struct{}{}
	}
	for _, role := range b {
		if _, ok := set[role]; ok {
			return true
		}
	}
	return false
}
