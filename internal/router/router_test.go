package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-session/internal/config"
	"github.com/iliyamo/auth-session/internal/handler"
	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/observability"
	"github.com/iliyamo/auth-session/internal/repository"
	"github.com/iliyamo/auth-session/internal/service"
	"github.com/iliyamo/auth-session/internal/utils"
)

type userStore struct {
	byID map[string]model.User
}

func (s *userStore) VerifyCredentials(_ context.Context, email, password string) (model.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			if utils.VerifyPassword(u.PasswordHash, password) {
				return u, nil
			}
			return model.User{}, fmt.Errorf("%w: password mismatch", repository.ErrCredentialsMismatch)
		}
	}
	return model.User{}, fmt.Errorf("%w: unknown email", repository.ErrCredentialsMismatch)
}

func (s *userStore) FindByID(_ context.Context, id string) (model.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type tokenStore struct {
	mu   sync.Mutex
	rows map[string]model.RefreshToken
	fail bool
}

func (s *tokenStore) Issue(_ context.Context, userID string, ttl time.Duration) (model.RefreshToken, error) {
	v, err := utils.NewRefreshTokenValue()
	if err != nil {
		return model.RefreshToken{}, err
	}
	now := time.Now().UTC()
	rt := model.RefreshToken{Token: v, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return model.RefreshToken{}, errors.New("db down")
	}
	s.rows[v] = rt
	return rt, nil
}

func (s *tokenStore) Lookup(_ context.Context, token string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.rows[token]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return rt, nil
}

func (s *tokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	if rt, ok := s.rows[token]; ok && rt.RevokedAt == nil {
		now := time.Now().UTC()
		rt.RevokedAt = &now
		s.rows[token] = rt
	}
	return nil
}

func (s *tokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for k, rt := range s.rows {
		if rt.UserID == userID && rt.RevokedAt == nil {
			rt.RevokedAt = &now
			s.rows[k] = rt
		}
	}
	return nil
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type app struct {
	e      *echo.Echo
	codec  *utils.TokenCodec
	tokens *tokenStore
}

func newApp(t *testing.T) *app {
	t.Helper()
	users := &userStore{byID: map[string]model.User{}}
	for _, u := range []model.User{
		{ID: "admin-1", Email: "admin", Role: model.RoleAdmin},
		{ID: "worker-1", Email: "worker", Role: model.RoleWorker},
	} {
		h, err := utils.HashPassword("123", bcrypt.MinCost)
		require.NoError(t, err)
		u.PasswordHash = h
		users.byID[u.ID] = u
	}
	tokens := &tokenStore{rows: map[string]model.RefreshToken{}}
	codec := utils.NewTokenCodec("router-test-secret", "auth-session-api")
	logger := observability.Discard()
	session := service.NewSession(users, tokens, codec, service.Options{}).WithLogger(logger)

	e := New(Deps{
		DB:         pinger{},
		Auth:       handler.NewAuthHandler(session, logger),
		Verifier:   codec,
		LoginLimit: config.LoginLimit{},
		Log:        logger,
	})
	return &app{e: e, codec: codec, tokens: tokens}
}

func (a *app) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

type loginBody struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         model.Identity `json:"user"`
}

func (a *app) login(t *testing.T, email, password string) loginBody {
	t.Helper()
	rec := a.do(http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lb loginBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lb))
	return lb
}

func TestLoginThenRoleGates(t *testing.T) {
	a := newApp(t)
	lb := a.login(t, "admin", "123")

	claims, err := a.codec.Verify(lb.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, model.Identity{ID: "admin-1", Email: "admin", Role: model.RoleAdmin}, lb.User)
	assert.Len(t, lb.RefreshToken, 64)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/admin/secret", lb.AccessToken, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/worker/secret", lb.AccessToken, nil).Code)

	w := a.login(t, "worker", "123")
	rec := a.do(http.MethodGet, "/api/admin/secret", w.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, []any{"admin"}, body["need"])
	assert.Equal(t, "worker", body["have"])

	rec = a.do(http.MethodGet, "/api/me", w.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": "worker-1", "email": "worker", "role": "worker"}, decode(t, rec)["user"])
}

func TestLoginFailuresLookAlike(t *testing.T) {
	a := newApp(t)

	wrongPwd := a.do(http.MethodPost, "/api/login", "", map[string]string{"email": "admin", "password": "x"})
	wrongEmail := a.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ghost", "password": "123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPwd.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongEmail.Code)
	assert.JSONEq(t, `{"error":"invalid_credentials"}`, wrongPwd.Body.String())
	assert.JSONEq(t, wrongPwd.Body.String(), wrongEmail.Body.String())
}

func TestLoginMissingFieldsAreInvalidCredentials(t *testing.T) {
	a := newApp(t)
	cases := map[string]any{
		"no password":  map[string]string{"email": "admin"},
		"empty fields": map[string]string{"email": "", "password": ""},
		"no body":      nil,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/api/login", "", body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"invalid_credentials"}`, rec.Body.String())
		})
	}
}

func TestRevokedRefreshTokenKeepsAccessTokenValid(t *testing.T) {
	a := newApp(t)
	lb := a.login(t, "admin", "123")

	rec := a.do(http.MethodPost, "/api/refresh", "", map[string]string{"refreshToken": lb.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["accessToken"])

	rec = a.do(http.MethodPost, "/api/logout", "", map[string]string{"refreshToken": lb.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(http.MethodPost, "/api/refresh", "", map[string]string{"refreshToken": lb.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_refresh_token","reason":"revoked"}`, rec.Body.String())

	// no access-token revocation list
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/me", lb.AccessToken, nil).Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodPost, "/api/refresh", "", map[string]string{"refreshToken": "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_refresh_token","reason":"not_found"}`, rec.Body.String())
}

func TestBearerGuard(t *testing.T) {
	a := newApp(t)

	rec := a.do(http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_token"}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing_bearer_token"}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/admin/secret", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAlwaysNoContent(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/api/logout", "", nil).Code)

	a.tokens.fail = true
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/api/logout", "", map[string]string{"refreshToken": "abc"}).Code)
}

func TestLogoutAll(t *testing.T) {
	a := newApp(t)
	one := a.login(t, "admin", "123")
	two := a.login(t, "admin", "123")

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/logout/all", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/api/logout/all", one.AccessToken, nil).Code)

	for _, rt := range []string{one.RefreshToken, two.RefreshToken} {
		rec := a.do(http.MethodPost, "/api/refresh", "", map[string]string{"refreshToken": rt})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestStorageFailureIsInternalError(t *testing.T) {
	a := newApp(t)
	a.tokens.fail = true

	rec := a.do(http.MethodPost, "/api/login", "", map[string]string{"email": "admin", "password": "123"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "up", body["db"])

	e := echo.New()
	RegisterRoutes(e, pinger{err: errors.New("refused")})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSReflectsOrigin(t *testing.T) {
	a := newApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
