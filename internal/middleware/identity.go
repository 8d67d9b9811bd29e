package middleware

// identity.go holds the helpers that move the verified caller identity
// through the Echo context.  JWTAuth stores it; RequireRole and the
// handlers read it.  The plain user_id and role values are picked up by the
// request logger.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session/internal/model"
)

const (
	identityKey = "identity"
	userIDKey   = "user_id"
	roleKey     = "role"
)

// SetIdentity attaches id to the request context.
func SetIdentity(c echo.Context, id model.Identity) {
	c.Set(identityKey, id)
	c.Set(userIDKey, id.ID)
	c.Set(roleKey, string(id.Role))
}

// IdentityFrom returns the identity attached by JWTAuth, if any.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	if !ok || id.ID == "" {
		return model.Identity{}, false
	}
	return id, true
}
