package handler

import (
	"context"  // request-scoped timeouts for storage calls
	"net/http" // HTTP status codes and primitives
	"time"     // timeouts for DB calls

	"github.com/getsentry/sentry-go" // reports unexpected failures
	"github.com/labstack/echo/v4"    // Echo framework for HTTP routing
	"github.com/labstack/gommon/log" // structured logging

	"github.com/iliyamo/auth-session/internal/middleware" // identity from the bearer guard
	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/service" // session issuance protocol
)

// SessionService is the session protocol the auth endpoints drive.
// *service.Session implements it.
type SessionService interface {
	Login(ctx context.Context, in service.LoginInput) (service.LoginResult, error)
	Refresh(ctx context.Context, in service.RefreshInput) (service.RefreshResult, error)
	Logout(ctx context.Context, in service.LogoutInput) error
	LogoutAll(ctx context.Context, id model.Identity, clientIP string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Session SessionService
	Log     *log.Logger
	Timeout time.Duration
}

func NewAuthHandler(s SessionService, l *log.Logger) *AuthHandler {
	return &AuthHandler{Session: s, Log: l, Timeout: 5 * time.Second}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResp struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         model.Identity `json:"user"`
}
type refreshResp struct {
	AccessToken string `json:"accessToken"`
}
type meResp struct {
	User model.Identity `json:"user"`
}

// Login: verify credentials and return an access token, a refresh token and
// the user.  Wrong email, wrong password and missing fields all produce the
// same 401 invalid_credentials.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Session.Login(ctx, service.LoginInput{Email: req.Email, Password: req.Password, ClientIP: c.RealIP()})
	if err != nil {
		if f, ok := service.AsFault(err); ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(f.Kind)})
		}
		return h.internalError(c, "login", err)
	}

	return c.JSON(http.StatusOK, loginResp{
		AccessToken:  res.AccessToken.Token,
		RefreshToken: res.RefreshToken.Token,
		User:         res.User,
	})
}

// Refresh: exchange a refresh token for a new access token.  The refresh
// token is not rotated.  Failures carry the reason since the caller already
// holds the token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Session.Refresh(ctx, service.RefreshInput{RefreshToken: req.RefreshToken, ClientIP: c.RealIP()})
	if err != nil {
		if f, ok := service.AsFault(err); ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(f.Kind), "reason": string(f.Reason)})
		}
		return h.internalError(c, "refresh", err)
	}
	return c.JSON(http.StatusOK, refreshResp{AccessToken: res.AccessToken.Token})
}

// Logout: revoke the given refresh token.  Always answers 204, even for an
// empty or unparsable body, so the endpoint reveals nothing about which tokens exist.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	if err := h.Session.Logout(ctx, service.LogoutInput{RefreshToken: req.RefreshToken, ClientIP: c.RealIP()}); err != nil {
		sentry.CaptureException(err)
		h.Log.Errorj(log.JSON{"event": "logout_revoke_failed", "error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll: revoke every refresh token of the authenticated caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	if err := h.Session.LogoutAll(ctx, id, c.RealIP()); err != nil {
		return h.internalError(c, "logout_all", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, meResp{User: id})
}

// AdminSecret and WorkerSecret are example role-gated resources.
func (h *AuthHandler) AdminSecret(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"secret": "admin-only data", "user": id})
}

func (h *AuthHandler) WorkerSecret(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"secret": "worker data", "user": id})
}

func (h *AuthHandler) internalError(c echo.Context, op string, err error) error {
	sentry.CaptureException(err)
	h.Log.Errorj(log.JSON{"event": op + "_failed", "error": err.Error()})
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
