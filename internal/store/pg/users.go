package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, email, password_hash, is_verified,
	coalesce(verification_token_hash, ''), coalesce(reset_token_hash, ''),
	coalesce(reset_token_expires_at, 'epoch'::timestamptz), created_at, updated_at`

// updatableUserColumns is the explicit allow-list for dynamic profile
// updates. Field names that are not keys here never reach a query.
var updatableUserColumns = map[string]string{
	"email": "email",
}

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, is_verified, verification_token_hash)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.IsVerified, nullIfEmpty(u.VerificationToken))
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findUserBy(ctx, "id = $1", id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUserBy(ctx, "email = $1", email)
}

func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return s.findUserBy(ctx, "verification_token_hash = $1", tokenHash)
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return s.findUserBy(ctx, "reset_token_hash = $1", tokenHash)
}

func (s *Store) findUserBy(ctx context.Context, where string, arg any) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var u auth.User
	err := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified,
		&u.VerificationToken, &u.ResetTokenHash, &u.ResetTokenExpiresAt,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.ResetTokenExpiresAt.Unix() == 0 {
		u.ResetTokenExpiresAt = time.Time{}
	}
	return &u, nil
}

func (s *Store) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	fields := map[string]any{}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(*upd.Email)
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
		}
		fields["email"] = trimmed
	}
	if len(fields) == 0 {
		return s.Find(ctx, id)
	}

	var (
		sets []string
		args []any
		idx  = 1
	)
	for field, value := range fields {
		column, ok := updatableUserColumns[field]
		if !ok {
			return nil, fmt.Errorf("%w: field %s is not updatable", auth.ErrInvalidInput, field)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrConflict
		}
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, auth.ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = now() where id = $2
	`, passwordHash, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) MarkVerified(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set is_verified = true, verification_token_hash = null, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set reset_token_hash = $1, reset_token_expires_at = $2, updated_at = now()
		where id = $3
	`, tokenHash, expiresAt, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// CompletePasswordReset applies the password change, clears the reset-token
// fields and drops the user's refresh token in one transaction, so a failed
// statement never leaves a half-reset account.
func (s *Store) CompletePasswordReset(ctx context.Context, id, passwordHash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set password_hash = $1, reset_token_hash = null, reset_token_expires_at = null, updated_at = now()
		where id = $2
	`, passwordHash, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from refresh_tokens where user_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}
