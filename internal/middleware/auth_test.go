package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchcms/api/internal/models"
	"churchcms/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuth resolves tokens from a fixed map; only CurrentUser matters
// to the middleware under test.
type fakeAuth struct {
	users map[string]models.User
	err   error
}

func (f *fakeAuth) SignIn(context.Context, string, string) (service.AuthResult, error) {
	return service.AuthResult{}, service.ErrInvalidCredentials
}

func (f *fakeAuth) SignUp(context.Context, service.SignUpInput) (service.AuthResult, error) {
	return service.AuthResult{}, service.ErrInvalidCredentials
}

func (f *fakeAuth) SignOut(context.Context, string) error { return nil }

func (f *fakeAuth) CurrentUser(_ context.Context, token string) (models.User, bool, error) {
	if f.err != nil {
		return models.User{}, false, f.err
	}
	user, ok := f.users[token]
	return user, ok, nil
}

func (f *fakeAuth) ChangePassword(context.Context, string, string, string) error { return nil }

func newGuardedRouter(auth service.Authenticator, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	chain := append([]gin.HandlerFunc{Auth(auth, zerolog.Nop())}, extra...)
	chain = append(chain, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	router.GET("/protected", chain...)
	return router
}

func doGet(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthAnonymousRedirectPreservesPath(t *testing.T) {
	router := newGuardedRouter(&fakeAuth{})

	rec := doGet(router, "/protected?tab=events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
	assert.Equal(t, "/login?next=%2Fprotected%3Ftab%3Devents", body["login"])
}

func TestAuthResolvesUser(t *testing.T) {
	auth := &fakeAuth{users: map[string]models.User{
		"tok-1": {ID: "u1", Role: models.RoleMember},
	}}
	router := newGuardedRouter(auth)

	rec := doGet(router, "/protected", "tok-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "u1")
}

func TestAuthStoreUnavailable(t *testing.T) {
	router := newGuardedRouter(&fakeAuth{err: service.ErrStoreUnavailable})

	rec := doGet(router, "/protected", "tok-1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "retryable")
}

func TestOptionalAuthPassesAnonymousThrough(t *testing.T) {
	router := gin.New()
	router.GET("/page", OptionalAuth(&fakeAuth{}, zerolog.Nop()), func(c *gin.Context) {
		_, ok := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	rec := doGet(router, "/page", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "false")
}

func TestAccessTokenEcho(t *testing.T) {
	auth := &fakeAuth{users: map[string]models.User{
		"tok-9": {ID: "u9", Role: models.RoleAdmin},
	}}
	router := gin.New()
	router.GET("/whoami", Auth(auth, zerolog.Nop()), func(c *gin.Context) {
		c.String(http.StatusOK, AccessToken(c))
	})

	rec := doGet(router, "/whoami", "tok-9")
	assert.Equal(t, "tok-9", rec.Body.String())
}
