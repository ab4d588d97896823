package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/auth"
)

const (
	userIDContextKey = "userID"
	roleContextKey   = "role"

	APIKeyHeader = "X-API-Key"
)

func UserIDFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := userID.(string)
	return value, ok && value != ""
}

// IsAdmin reports whether the authenticated token carries the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(roleContextKey) == auth.RoleAdmin
}

func abortWith(c *gin.Context, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": kind, "message": message})
}

func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWith(c, apperr.KindUnauthorized, "Invalid authentication token")
			return
		}

		claims, err := auth.VerifyToken(parts[1], cfg)
		if err != nil {
			abortWith(c, apperr.KindUnauthorized, "Invalid authentication token")
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Set(roleContextKey, claims.Role)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			abortWith(c, apperr.KindForbidden, "Admin role required")
			return
		}
		c.Next()
	}
}

// RequireAPIKey rejects requests without the shared key. An empty key
// disables the check.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abortWith(c, apperr.KindUnauthorized, "Invalid API key")
			return
		}
		c.Next()
	}
}

// OwnerKey keys rate limits by the authenticated owner, falling back to the
// client address.
func OwnerKey(c *gin.Context) string {
	if userID, ok := UserIDFromContext(c); ok {
		return "owner:" + userID
	}
	return "ip:" + c.ClientIP()
}
