package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"                   // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware" // Echo's bundled CORS / request id middleware
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session/internal/config"
	"github.com/iliyamo/auth-session/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/auth-session/internal/middleware" // bearer guard, role gate and login limiter
	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/observability" // request logging and panic reporting
)

// Deps collects what the route table needs.
type Deps struct {
	DB         handler.Pinger
	Auth       *handler.AuthHandler
	Verifier   middleware.TokenVerifier
	Redis      *redis.Client
	LoginLimit config.LoginLimit
	Log        *log.Logger
}

// New builds the Echo instance with the global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = d.Log

	e.Use(echomw.RequestID())
	e.Use(observability.Recover(d.Log))
	e.Use(observability.RequestLogger(d.Log))
	// Reflect any origin, with credentials.
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},

		UnsafeWildcardOriginWithAllowCredentials: true,
	}))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, d.Verifier, middleware.LoginLimiter(d.LoginLimit, d.Redis, d.Log))
	RegisterProtected(e, d.Auth, d.Verifier)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	// Used by load balancers and monitoring; 503 when the database is down.
	e.GET("/api/health", handler.Health(db))
}

// RegisterAuth registers the session endpoints.  Login goes through the
// limiter; refresh and logout need no access token, logout/all and me do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier, limiter echo.MiddlewareFunc) {
	g := e.Group("/api")
	g.POST("/login", a.Login, limiter)
	// Exchanges a refresh token for a new access token without rotating it.
	g.POST("/refresh", a.Refresh)
	// Always 204, whether or not the token existed.
	g.POST("/logout", a.Logout)

	g.POST("/logout/all", a.LogoutAll, middleware.JWTAuth(v))
	g.GET("/me", a.Me, middleware.JWTAuth(v))
}

// RegisterProtected registers the role-gated example resources.  Roles are
// listed explicitly: admin does not imply worker.
func RegisterProtected(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier) {
	auth := middleware.JWTAuth(v)
	e.GET("/api/admin/secret", a.AdminSecret, auth, middleware.RequireRole(model.RoleAdmin))
	e.GET("/api/worker/secret", a.WorkerSecret, auth, middleware.RequireRole(model.RoleWorker, model.RoleAdmin))
}
