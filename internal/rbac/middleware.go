package rbac

import (
	"net/http"

	"webhook-recorder/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireServiceAccess limits a token to the services it names.
// A token without a services list may read any service; admin bypasses the check.
func RequireServiceAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := auth.Role(c.Request.Context()); IsAdmin(role) {
			c.Next()
			return
		}
		allowed := auth.Services(c.Request.Context())
		if len(allowed) == 0 {
			c.Next()
			return
		}
		service := c.Param("service")
		for _, s := range allowed {
			if s == service {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "role required"})
			return
		}

		if IsAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}
		c.Next()
	}
}
