package auth

import "time"

// User is an account holder. Roles are derived through user_roles and never
// stored on the record itself. The password hash is opaque to everything but
// the password helpers and is never serialized to clients.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	IsVerified          bool
	VerificationToken   string
	ResetTokenHash      string
	ResetTokenExpiresAt time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Role groups permissions under a stable name. Near-static reference data.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a (resource, action) capability pair, e.g. (users, update_own).
type Permission struct {
	ID       int64
	Resource string
	Action   string
}

// RefreshToken is the persisted half of an opaque refresh token. One active
// record per user: replacing it invalidates the previous session.
type RefreshToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PermissionMap resolves to everything a role set may do: resource -> actions.
type PermissionMap map[string]map[string]struct{}

// Allows reports whether the map grants action on resource. Exact grants
// only; there are no wildcard or hierarchy semantics.
func (m PermissionMap) Allows(resource, action string) bool {
	actions, ok := m[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Add records a grant, allocating the action set on first use.
func (m PermissionMap) Add(resource, action string) {
	actions, ok := m[resource]
	if !ok {
		actions = make(map[string]struct{})
		m[resource] = actions
	}
	actions[action] = struct{}{}
}

// UserUpdate carries optional profile mutations. Only fields present in the
// store's column allow-list ever reach a query.
type UserUpdate struct {
	Email *string
}
