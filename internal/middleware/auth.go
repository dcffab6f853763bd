package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// AuthMiddleware guards the API with a shared key. An empty configured key
// disables the check, which is the local development mode.
type AuthMiddleware struct {
	log *logger.Logger
	key string
}

func NewAuthMiddleware(log *logger.Logger, key string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), key: key}
}

func (am *AuthMiddleware) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.key == "" {
			c.Next()
			return
		}
		presented := extractKey(c)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(am.key)) != 1 {
			am.log.Warn("Rejected request with bad API key", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
