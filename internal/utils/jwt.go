package utils // package utils provides helpers for token signing, hashing and random values

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/auth-session/internal/model"
)

// DefaultAccessTTL is the lifetime of an access token when the caller does
// not configure one.
const DefaultAccessTTL = 15 * time.Minute

// Verification failures.  Callers at the network edge collapse all three
// into a single "invalid_token" response.
var (
	ErrMalformedToken     = errors.New("malformed token")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrExpiredAccessToken = errors.New("access token expired")
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims is the payload of an access token: sub, email, role, iss,
// iat and exp.
type AccessClaims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the identity the claims vouch for.
func (c AccessClaims) Identity() model.Identity {
	return model.Identity{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// TokenCodec signs and verifies HS256 access tokens with a process-wide
// secret.  It performs no I/O and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec returns a codec bound to secret.  Tokens carry issuer in
// their "iss" claim and tokens from any other issuer are rejected.
func NewTokenCodec(secret, issuer string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// WithClock replaces the time source used for iat/exp and for expiry checks.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Sign builds a token for id that expires ttl from now.
func (c *TokenCodec) Sign(id model.Identity, ttl time.Duration) (AccessToken, error) {
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: claims.ExpiresAt.Time}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// The returned error is always one of ErrMalformedToken,
// ErrInvalidSignature or ErrExpiredAccessToken (possibly wrapped).
func (c *TokenCodec) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredAccessToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing subject or unknown role", ErrMalformedToken)
	}
	return claims, nil
}
