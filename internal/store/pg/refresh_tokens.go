package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
)

var _ auth.RefreshTokenStore = (*Store)(nil)

// Replace upserts the user's refresh-token record. user_id is the primary
// key, so issuing a new token displaces the previous one atomically.
func (s *Store) Replace(ctx context.Context, tok *auth.RefreshToken) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (user_id, token_hash, expires_at)
		values ($1, $2, $3)
		on conflict (user_id) do update
		set token_hash = excluded.token_hash,
		    expires_at = excluded.expires_at,
		    created_at = now()
	`, tok.UserID, tok.TokenHash, tok.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindByUser(ctx context.Context, userID string) (*auth.RefreshToken, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var tok auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select user_id, token_hash, expires_at, created_at
		from refresh_tokens
		where user_id = $1
	`, userID).Scan(&tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *Store) Revoke(ctx context.Context, userID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where user_id = $1`, userID)
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
