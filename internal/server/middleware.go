package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const userContextKey = "billing_user_id"

// RequireUser extracts the authenticated subject from the X-User-Id header.
// The engine sits behind the platform's API gateway, which terminates auth
// and forwards the verified user identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(userContextKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
