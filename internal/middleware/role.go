package middleware // middleware provides shared request processing for handlers

import (
	"errors"
	"fmt"
	"net/http" // http package defines standard HTTP status codes
	"strings"

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/auth-session/internal/model"
)

// ErrUnauthenticated is returned by CheckRole when no identity is attached.
var ErrUnauthenticated = errors.New("unauthenticated")

// ForbiddenError carries the roles a gate accepts and the role the caller
// actually has.
type ForbiddenError struct {
	Need []model.Role
	Have model.Role
}

func (e *ForbiddenError) Error() string {
	need := make([]string, len(e.Need))
	for i, r := range e.Need {
		need[i] = string(r)
	}
	return fmt.Sprintf("forbidden: need one of [%s], have %q", strings.Join(need, ","), e.Have)
}

// CheckRole is the role gate without HTTP: it returns ErrUnauthenticated
// when there is no identity, a *ForbiddenError when the role is not listed,
// and nil otherwise.  Membership is exact; no role implies another.
func CheckRole(id *model.Identity, roles ...model.Role) error {
	if id == nil || id.ID == "" {
		return ErrUnauthenticated
	}
	if !id.HasRole(roles...) {
		return &ForbiddenError{Need: roles, Have: id.Role}
	}
	return nil
}

// RequireRole returns a middleware that only lets callers holding one of
// roles through.  It must run after JWTAuth; used on its own every request
// is rejected with 401 unauthenticated.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	need := append([]model.Role(nil), roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var idp *model.Identity
			if id, ok := IdentityFrom(c); ok {
				idp = &id
			}
			err := CheckRole(idp, need...)
			var fe *ForbiddenError
			switch {
			case err == nil:
				return next(c)
			case errors.As(err, &fe):
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "forbidden",
					"need":  fe.Need,
					"have":  fe.Have,
				})
			default:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
		}
	}
}
