package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/utils"
)

var (
	admin  = model.Identity{ID: "admin-1", Email: "admin", Role: model.RoleAdmin}
	worker = model.Identity{ID: "worker-1", Email: "worker", Role: model.RoleWorker}
)

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearerabc", "", false},
		{"Token abc", "", false},
	}
	for _, tt := range tests {
		got, err := ExtractBearer(tt.header)
		if tt.ok {
			require.NoError(t, err, tt.header)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, ErrMissingBearerToken, tt.header)
		}
	}
}

func TestCheckRole(t *testing.T) {
	assert.NoError(t, CheckRole(&admin, model.RoleAdmin))
	assert.NoError(t, CheckRole(&admin, model.RoleWorker, model.RoleAdmin))
	assert.ErrorIs(t, CheckRole(nil, model.RoleAdmin), ErrUnauthenticated)
	assert.ErrorIs(t, CheckRole(&model.Identity{}, model.RoleAdmin), ErrUnauthenticated)

	err := CheckRole(&admin, model.RoleWorker)
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []model.Role{model.RoleWorker}, fe.Need)
	assert.Equal(t, model.RoleAdmin, fe.Have)

	// no hierarchy
	assert.Error(t, CheckRole(&worker, model.RoleAdmin))
}

func newGuardedEcho(codec *utils.TokenCodec) *echo.Echo {
	e := echo.New()
	ok := func(c echo.Context) error {
		id, _ := IdentityFrom(c)
		return c.JSON(http.StatusOK, id)
	}
	e.GET("/me", ok, JWTAuth(codec))
	e.GET("/admin", ok, JWTAuth(codec), RequireRole(model.RoleAdmin))
	e.GET("/worker", ok, JWTAuth(codec), RequireRole(model.RoleWorker))
	e.GET("/unguarded", ok, RequireRole(model.RoleAdmin))
	return e
}

func call(e *echo.Echo, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJWTAuth(t *testing.T) {
	codec := utils.NewTokenCodec("s3cret", "test")
	e := newGuardedEcho(codec)
	tok, err := codec.Sign(admin, time.Minute)
	require.NoError(t, err)

	t.Run("valid token attaches identity", func(t *testing.T) {
		rec := call(e, "/me", "Bearer "+tok.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		var got model.Identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, admin, got)
	})

	t.Run("no header", func(t *testing.T) {
		rec := call(e, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeMissingBearerToken, errorCode(t, rec)["error"])
	})

	t.Run("wrong scheme", func(t *testing.T) {
		rec := call(e, "/me", "Basic "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeMissingBearerToken, errorCode(t, rec)["error"])
	})

	t.Run("garbage", func(t *testing.T) {
		rec := call(e, "/me", "Bearer garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeInvalidToken, errorCode(t, rec)["error"])
	})

	t.Run("expired and foreign tokens look the same", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		expired, err := utils.NewTokenCodec("s3cret", "test").WithClock(func() time.Time { return past }).Sign(admin, time.Minute)
		require.NoError(t, err)
		foreign, err := utils.NewTokenCodec("other", "test").Sign(admin, time.Minute)
		require.NoError(t, err)

		for _, raw := range []string{expired.Token, foreign.Token} {
			rec := call(e, "/me", "Bearer "+raw)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, CodeInvalidToken, errorCode(t, rec)["error"])
		}
	})
}

func TestRequireRole(t *testing.T) {
	codec := utils.NewTokenCodec("s3cret", "test")
	e := newGuardedEcho(codec)
	tok, err := codec.Sign(admin, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(e, "/admin", "Bearer "+tok.Token).Code)

	rec := call(e, "/worker", "Bearer "+tok.Token)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := errorCode(t, rec)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, []any{"worker"}, body["need"])
	assert.Equal(t, "admin", body["have"])

	rec = call(e, "/unguarded", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, rec)["error"])
}
