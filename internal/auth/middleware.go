package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// RequireAccessToken verifies the bearer access token and puts the staff identity on the
// request context. Role checks are left to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireAccessToken(m, time.Now)
}

func requireAccessToken(m *Manager, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, now())
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		if claims.UserID == "" || claims.Role == "" {
			unauthorized(c, "token carries no staff identity")
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.Role))
		// mirrored on the gin context for the request logger
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	return tok, tok != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": msg})
}
