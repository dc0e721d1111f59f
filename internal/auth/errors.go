package auth

import "errors"

// Authentication and authorization failures are reported through these
// sentinels; the HTTP layer maps each one to a status code exactly once.
var (
	ErrInvalidCredentials    = errors.New("auth: invalid credentials")
	ErrNotVerified           = errors.New("auth: account not verified")
	ErrMissingRefreshToken   = errors.New("auth: missing refresh token")
	ErrUnidentifiableRefresh = errors.New("auth: refresh request not identifiable")
	ErrRefreshReused         = errors.New("auth: refresh token invalid or reused")
	ErrUserVanished          = errors.New("auth: user no longer exists")
	ErrDeverified            = errors.New("auth: account no longer verified")
	ErrResetTokenInvalid     = errors.New("auth: password reset token is invalid or has expired")
	ErrVerifyTokenInvalid    = errors.New("auth: verification token is invalid")
	ErrEmailTaken            = errors.New("auth: email already in use")
	ErrForbidden             = errors.New("auth: forbidden")
	ErrInvalidToken          = errors.New("auth: invalid token")
	ErrExpiredToken          = errors.New("auth: token has expired")
)

// Store-level sentinels shared by the pg implementations.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
