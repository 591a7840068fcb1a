package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glucoheart/internal/pkg/jwtutil"
	"glucoheart/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextRoleKey     = "role"
)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := jwtutil.ExtractToken(c.Request)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID != 0
}
