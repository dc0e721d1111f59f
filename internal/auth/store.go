package auth

import (
	"context"
	"time"
)

// UserStore persists user records. Multi-statement mutations run inside a
// transaction on the implementation side so partial state never surfaces.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string) error
	FindByVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	// CompletePasswordReset updates the password hash, clears the reset-token
	// fields and revokes the user's refresh token in a single transaction.
	CompletePasswordReset(ctx context.Context, id, passwordHash string) error
}

// RoleStore answers the role/permission join queries the resolver caches, and
// carries the mutations that must invalidate those caches.
type RoleStore interface {
	RoleNamesForUser(ctx context.Context, userID string) ([]string, error)
	RoleIDsByName(ctx context.Context, names []string) ([]int64, error)
	PermissionsForRoleIDs(ctx context.Context, roleIDs []int64) (PermissionMap, error)

	CreateRole(ctx context.Context, name, description string) (Role, error)
	SetRolePermissions(ctx context.Context, roleID int64, perms []Permission) error
	AssignRole(ctx context.Context, userID string, roleID int64) error
	RemoveRole(ctx context.Context, userID string, roleID int64) error
}

// RefreshTokenStore manages the single active refresh token per user.
type RefreshTokenStore interface {
	// Replace upserts the record, displacing any previous token for the user.
	Replace(ctx context.Context, tok *RefreshToken) error
	FindByUser(ctx context.Context, userID string) (*RefreshToken, error)
	// Revoke deletes the user's record. With one token per user this revokes
	// every outstanding refresh session.
	Revoke(ctx context.Context, userID string) error
}
