package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"churchcms/api/internal/models"
	"churchcms/api/internal/service"
)

const (
	ctxKeyUser  = "current_user"
	ctxKeyToken = "access_token"

	signInPath = "/login"
)

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// loginRedirect carries the originally requested path so the client can
// resume it after sign-in.
func loginRedirect(c *gin.Context) string {
	next := c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		next += "?" + c.Request.URL.RawQuery
	}
	return signInPath + "?next=" + url.QueryEscape(next)
}

// Auth resolves the bearer token to a user and aborts anonymous
// requests with a sign-in redirect hint. A missing or dead session is
// the normal logged-out state; only backend failures become 503s.
func Auth(auth service.Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)

		user, ok, err := auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrStoreUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":     "store_unavailable",
					"retryable": true,
				})
				return
			}
			log.Error().Err(err).Msg("resolve session failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
				"login": loginRedirect(c),
			})
			return
		}

		c.Set(ctxKeyUser, user)
		c.Set(ctxKeyToken, token)

		c.Next()
	}
}

// OptionalAuth resolves the session when present but lets anonymous
// requests through; handlers check CurrentUser themselves.
func OptionalAuth(auth service.Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, ok, err := auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("optional session resolve failed")
		} else if ok {
			c.Set(ctxKeyUser, user)
			c.Set(ctxKeyToken, token)
		}

		c.Next()
	}
}

// CurrentUser returns the authenticated user set by Auth or
// OptionalAuth, and false for anonymous requests.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(ctxKeyUser)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

// AccessToken returns the bearer token the current request presented.
func AccessToken(c *gin.Context) string {
	return c.GetString(ctxKeyToken)
}
