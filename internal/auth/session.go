package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xhifi/brainloggers-backend-sub001/internal/ids"
	"github.com/xhifi/brainloggers-backend-sub001/internal/mail"
	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
	"github.com/xhifi/brainloggers-backend-sub001/internal/stream"
)

const resetTokenTTL = time.Hour

// TokenPair carries freshly minted credentials. The refresh token is the raw
// opaque value: it exists only here and in the client's cookie; storage sees
// its hash alone.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// UserSummary is the minimal user projection returned by login and refresh.
type UserSummary struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// LoginResult is the outcome of a successful login or refresh.
type LoginResult struct {
	TokenPair
	User UserSummary
}

// Sessions orchestrates login, refresh, logout and password lifecycle flows
// over the credential store, the token issuer, the refresh-token store and
// the permission resolver.
type Sessions struct {
	users    UserStore
	refresh  RefreshTokenStore
	resolver *Resolver
	tokens   *Tokens
	denylist *Denylist
	mailer   mail.Mailer
	events   *stream.Hub
	newID    func() string
	now      func() time.Time
}

// NewSessions wires the session controller.
func NewSessions(users UserStore, refresh RefreshTokenStore, resolver *Resolver, tokens *Tokens, denylist *Denylist, mailer mail.Mailer) *Sessions {
	return &Sessions{
		users:    users,
		refresh:  refresh,
		resolver: resolver,
		tokens:   tokens,
		denylist: denylist,
		mailer:   mailer,
		newID:    ids.New,
		now:      time.Now,
	}
}

// WithEvents attaches a hub that receives live security events.
func (s *Sessions) WithEvents(hub *stream.Hub) *Sessions {
	s.events = hub
	return s
}

// WithClock overrides the time source. Test use only.
func (s *Sessions) WithClock(fn func() time.Time) *Sessions {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Register creates an unverified account with no role assignments and queues
// a verification email. The raw verification token leaves the process only
// inside that email.
func (s *Sessions) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	verifyToken := uuid.NewString()
	user := &User{
		ID:                s.newID(),
		Email:             email,
		PasswordHash:      hash,
		IsVerified:        false,
		VerificationToken: HashToken(verifyToken),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.sendAsync(ctx, func(ctx context.Context) error {
		return s.mailer.SendVerificationEmail(ctx, email, verifyToken)
	})
	return user, nil
}

// VerifyEmail marks the account verified given a valid verification token.
func (s *Sessions) VerifyEmail(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrVerifyTokenInvalid
	}
	user, err := s.users.FindByVerificationToken(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrVerifyTokenInvalid
		}
		return err
	}
	return s.users.MarkVerified(ctx, user.ID)
}

// Login authenticates credentials and issues a token pair. Nonexistent email
// and wrong password fail identically so accounts cannot be enumerated.
func (s *Sessions) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		obs.RecordLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.RecordLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		obs.RecordLogin("not_verified")
		return nil, ErrNotVerified
	}
	result, err := s.mint(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	obs.RecordLogin("success")
	s.events.Publish(stream.Event{Type: stream.EventLogin, UserID: user.ID})
	return result, nil
}

// Refresh rotates the session. It is a two-factor operation: the opaque
// refresh cookie proves possession, and the (possibly expired) access token
// identifies whose stored hash to compare against.
func (s *Sessions) Refresh(ctx context.Context, rawRefresh, bearerToken string) (*LoginResult, error) {
	if strings.TrimSpace(rawRefresh) == "" {
		return nil, ErrMissingRefreshToken
	}
	userID, err := s.tokens.DecodeExpired(bearerToken)
	if err != nil {
		return nil, ErrUnidentifiableRefresh
	}
	rec, err := s.refresh.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRefreshReused
		}
		return nil, err
	}
	if s.now().After(rec.ExpiresAt) {
		_ = s.refresh.Revoke(ctx, userID)
		return nil, ErrRefreshReused
	}
	if !VerifyTokenHash(rec.TokenHash, rawRefresh) {
		// Possession of the cookie name without the current value is the
		// signature of token theft or replay of a rotated-out token. Revoke
		// every refresh session for the user and force a fresh login.
		_ = s.refresh.Revoke(ctx, userID)
		obs.RecordReuseDetected()
		obs.LogRequest(map[string]any{
			"level":   "warn",
			"msg":     "refresh token mismatch, sessions revoked",
			"user_id": userID,
		})
		s.events.Publish(stream.Event{Type: stream.EventReuseDetected, UserID: userID})
		return nil, ErrRefreshReused
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserVanished
		}
		return nil, err
	}
	if !user.IsVerified {
		_ = s.refresh.Revoke(ctx, userID)
		return nil, ErrDeverified
	}
	result, err := s.mint(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	obs.RecordRotation()
	s.events.Publish(stream.Event{Type: stream.EventRefresh, UserID: user.ID})
	return result, nil
}

// Logout revokes the stored refresh token and denylists the current access
// token until its natural expiry. Callers clear the cookie regardless of the
// outcome here.
func (s *Sessions) Logout(ctx context.Context, userID, rawAccess string) error {
	if claims, err := s.tokens.ParseAccessToken(rawAccess); err == nil && claims.ExpiresAt != nil {
		_ = s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	}
	if err := s.refresh.Revoke(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.events.Publish(stream.Event{Type: stream.EventLogout, UserID: userID})
	return nil
}

// ForgotPassword responds identically whether or not the email exists or is
// verified; a reset token is only actually issued for a verified account.
func (s *Sessions) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsVerified {
		return nil
	}
	resetToken := uuid.NewString()
	expires := s.now().UTC().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, HashToken(resetToken), expires); err != nil {
		return err
	}
	s.sendAsync(ctx, func(ctx context.Context) error {
		return s.mailer.SendPasswordResetEmail(ctx, user.Email, resetToken)
	})
	return nil
}

// ResetPassword completes a reset: new password hash, reset fields cleared
// and every refresh session revoked, atomically. Clients must log in again.
func (s *Sessions) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrResetTokenInvalid
	}
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user, err := s.users.FindByResetToken(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if user.ResetTokenExpiresAt.IsZero() || s.now().After(user.ResetTokenExpiresAt) {
		return ErrResetTokenInvalid
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.CompletePasswordReset(ctx, user.ID, hash); err != nil {
		return err
	}
	s.events.Publish(stream.Event{Type: stream.EventPasswordReset, UserID: user.ID})
	return nil
}

// mint resolves fresh roles from the store (never from a stale token), then
// issues both tokens. The new refresh hash is persisted before the raw value
// is handed back, so the client never holds a token storage cannot check.
func (s *Sessions) mint(ctx context.Context, userID string) (*LoginResult, error) {
	roles, err := s.resolver.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccessToken(userID, roles)
	if err != nil {
		return nil, err
	}
	rawRefresh, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshExp := s.now().UTC().Add(s.tokens.RefreshTTL())
	rec := &RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(rawRefresh),
		ExpiresAt: refreshExp,
	}
	if err := s.refresh.Replace(ctx, rec); err != nil {
		return nil, err
	}
	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:      access,
			RefreshToken:     rawRefresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
		User: UserSummary{ID: userID, Roles: roles},
	}, nil
}

// sendAsync dispatches an email without blocking the primary response. The
// detached context survives the request; failures are logged, not returned.
func (s *Sessions) sendAsync(ctx context.Context, send func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := send(detached); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "email dispatch failed",
				"error": err.Error(),
			})
		}
	}()
}
