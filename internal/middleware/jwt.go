package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/auth-session/internal/utils"
)

// Wire codes for the bearer guard.
const (
	CodeMissingBearerToken = "missing_bearer_token"
	CodeInvalidToken       = "invalid_token"
)

// ErrMissingBearerToken is returned by ExtractBearer when the header is
// absent or not of the form "Bearer <token>".
var ErrMissingBearerToken = errors.New("missing bearer token")

// TokenVerifier verifies an access token.  *utils.TokenCodec implements it.
type TokenVerifier interface {
	Verify(raw string) (*utils.AccessClaims, error)
}

// ExtractBearer pulls the token out of an Authorization header value.  The
// scheme is matched case-insensitively and must be followed by a space and a
// non-empty token.
func ExtractBearer(header string) (string, error) {
	const scheme = "bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", ErrMissingBearerToken
	}
	raw := strings.TrimSpace(header[len(scheme):])
	if raw == "" {
		return "", ErrMissingBearerToken
	}
	return raw, nil
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and attaches the caller's identity to the request context.  A missing
// header is rejected before any verification work is done; every
// verification failure (malformed, bad signature, expired) is reported as
// the same invalid_token code.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": CodeMissingBearerToken})
			}

			claims, err := v.Verify(raw)
			if err != nil {
				c.Logger().Debugj(map[string]interface{}{"event": "access_token_rejected", "error": err.Error()})
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": CodeInvalidToken})
			}

			SetIdentity(c, claims.Identity())
			return next(c)
		}
	}
}
