package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/utils"
)

// DefaultRefreshTTL is how long a refresh token lives when no TTL is given.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// TokenRepo persists refresh tokens.  The opaque token value is the primary
// key; rows are inserted on login and only ever updated to set revoked_at.
type TokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, now: time.Now} }

// WithClock replaces the time source used for created_at/expires_at/revoked_at.
func (r *TokenRepo) WithClock(now func() time.Time) *TokenRepo {
	r.now = now
	return r
}

// Issue generates and stores a new refresh token for userID.  A ttl <= 0
// selects DefaultRefreshTTL.
func (r *TokenRepo) Issue(ctx context.Context, userID string, ttl time.Duration) (model.RefreshToken, error) {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	value, err := utils.NewRefreshTokenValue()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	created := r.now().UTC().Truncate(time.Microsecond)
	rt := model.RefreshToken{
		Token:     value,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, user_id, expires_at, created_at, revoked_at) VALUES (?,?,?,?,NULL)",
		rt.Token, rt.UserID, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	return rt, nil
}

// Lookup fetches a refresh token by value.  It returns ErrNotFound when no
// row exists; revoked and expired rows are returned as-is for the caller to
// classify.
func (r *TokenRepo) Lookup(ctx context.Context, token string) (model.RefreshToken, error) {
	var (
		rt        model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT token, user_id, expires_at, created_at, revoked_at FROM refresh_tokens WHERE token=? LIMIT 1",
		token).Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		rt.RevokedAt = &t
	}
	return rt, nil
}

// Revoke marks a token as revoked.  Already-revoked and unknown tokens are
// left untouched and are not an error.
func (r *TokenRepo) Revoke(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token=? AND revoked_at IS NULL",
		r.now().UTC().Truncate(time.Microsecond), token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active token of userID.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		r.now().UTC().Truncate(time.Microsecond), userID)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
