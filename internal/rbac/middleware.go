package rbac

import (
	"net/http"

	"salon-leads/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses the check; unknown roles are always denied.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok || !IsKnownRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireCapability gates a route on a capability check, performed before the engine is invoked.
func RequireCapability(can Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "role required"})
			return
		}
		if !can(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "forbidden"})
			return
		}
		c.Next()
	}
}
