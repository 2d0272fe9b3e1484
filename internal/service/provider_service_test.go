package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchcms/api/internal/config"
	"churchcms/api/internal/models"
	"churchcms/api/internal/security"
)

const testProviderSecret = "test-project-secret"

func signProviderToken(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	claims := security.ProviderClaims{
		Email: "jane@example.org",
		Role:  "leader",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testProviderSecret))
	require.NoError(t, err)
	return signed
}

// fakeProvider imitates the hosted identity platform's HTTP surface.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["email"] != "jane@example.org" || body["password"] != "sunday-morning" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": signProviderToken(t, "user-1", time.Hour),
			"expires_in":   3600,
			"user": map[string]any{
				"id":    "user-1",
				"email": "jane@example.org",
				"user_metadata": map[string]string{
					"display_name": "Jane",
					"role":         "leader",
				},
			},
		})
	})

	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["email"] == "taken@example.org" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": signProviderToken(t, "user-2", time.Hour),
			"expires_in":   3600,
			"user": map[string]any{
				"id":    "user-2",
				"email": body["email"],
			},
		})
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "user-1",
			"email": "jane@example.org",
			"user_metadata": map[string]string{
				"display_name": "Jane",
				"role":         "leader",
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProviderService(t *testing.T) *ProviderAuthService {
	srv := fakeProvider(t)
	return NewProviderAuthService(config.AuthConfig{
		Mode:           "provider",
		ProviderURL:    srv.URL,
		ProviderKey:    "anon-key",
		ProviderSecret: testProviderSecret,
	}, zerolog.Nop())
}

func TestProviderSignIn(t *testing.T) {
	svc := newProviderService(t)

	result, err := svc.SignIn(context.Background(), "jane@example.org", "sunday-morning")
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.User.ID)
	assert.Equal(t, models.RoleEditor, result.User.Role, "legacy alias normalized")
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))
}

func TestProviderSignInInvalidCredentials(t *testing.T) {
	svc := newProviderService(t)

	_, err := svc.SignIn(context.Background(), "jane@example.org", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "nobody@example.org", "sunday-morning")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProviderSignUpConflict(t *testing.T) {
	svc := newProviderService(t)

	_, err := svc.SignUp(context.Background(), SignUpInput{
		Email:    "taken@example.org",
		Password: "whatever-else",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestProviderSignUp(t *testing.T) {
	svc := newProviderService(t)

	result, err := svc.SignUp(context.Background(), SignUpInput{
		Email:       "new@example.org",
		Password:    "sunday-morning",
		DisplayName: "Newcomer",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-2", result.User.ID)
	assert.Equal(t, models.RoleMember, result.User.Role, "no role metadata defaults to member")
}

func TestProviderCurrentUser(t *testing.T) {
	svc := newProviderService(t)

	token := signProviderToken(t, "user-1", time.Hour)
	user, ok, err := svc.CurrentUser(context.Background(), token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "Jane", user.DisplayName)
	assert.Equal(t, models.RoleEditor, user.Role)
}

func TestProviderCurrentUserBadToken(t *testing.T) {
	svc := newProviderService(t)

	_, ok, err := svc.CurrentUser(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = svc.CurrentUser(context.Background(), "garbage")
	require.NoError(t, err)
	assert.False(t, ok)

	expired := signProviderToken(t, "user-1", -time.Minute)
	_, ok, err = svc.CurrentUser(context.Background(), expired)
	require.NoError(t, err)
	assert.False(t, ok, "expired token is anonymous, not an error")
}

func TestProviderSignOutIdempotent(t *testing.T) {
	svc := newProviderService(t)

	// No token at the platform side answers 404; still a success.
	assert.NoError(t, svc.SignOut(context.Background(), ""))
	assert.NoError(t, svc.SignOut(context.Background(), signProviderToken(t, "user-1", time.Hour)))
}

func TestProviderUnreachable(t *testing.T) {
	svc := NewProviderAuthService(config.AuthConfig{
		Mode:           "provider",
		ProviderURL:    "http://127.0.0.1:1",
		ProviderSecret: testProviderSecret,
	}, zerolog.Nop())

	_, err := svc.SignIn(context.Background(), "jane@example.org", "sunday-morning")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
