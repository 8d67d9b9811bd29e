package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table.  The token
// value itself is the primary key: 32 random bytes, hex encoded.
//
// Fields:
//  Token     – opaque session handle handed to the client.
//  UserID    – owner of the token (cascade-deleted with the user).
//  CreatedAt – issuance time.
//  ExpiresAt – CreatedAt + TTL.
//  RevokedAt – when the token was revoked (nil while still eligible).
type RefreshToken struct {
	Token     string     // refresh_tokens.token
	UserID    string     // refresh_tokens.user_id
	CreatedAt time.Time  // refresh_tokens.created_at
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
}

// Revoked reports whether the token has been explicitly revoked.
func (t RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// ExpiredAt reports whether the token is past its expiry at now.
func (t RefreshToken) ExpiredAt(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// UsableAt reports whether the token can still be exchanged for an access
// token: not revoked and now < ExpiresAt.
func (t RefreshToken) UsableAt(now time.Time) bool {
	return !t.Revoked() && !t.ExpiredAt(now)
}
