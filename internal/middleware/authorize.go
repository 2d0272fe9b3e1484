package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"churchcms/api/internal/authz"
	"churchcms/api/internal/models"
)

// RequireAdmin admits only admins. An authenticated non-admin gets an
// access-denied body naming both roles, never a redirect: the user is
// valid, just insufficiently privileged.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	roleSet := make(map[models.Role]struct{}, len(roles))
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
		required = append(required, string(role))
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
				"login": loginRedirect(c),
			})
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":          "access_denied",
				"required_roles": required,
				"actual_role":    string(user.Role),
			})
			return
		}

		c.Next()
	}
}

// RequirePermission admits users whose role carries perm; the admin
// override inside authz.HasPermission applies.
func RequirePermission(perm authz.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
				"login": loginRedirect(c),
			})
			return
		}

		if !authz.HasPermission(user.Role, perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":               "permission_denied",
				"required_permission": string(perm),
				"actual_role":         string(user.Role),
			})
			return
		}

		c.Next()
	}
}
