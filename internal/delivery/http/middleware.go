package http

import (
	"github.com/gin-gonic/gin"
	"strings"
)

const (
	// UserIDHeader carries the caller identity. It is recorded on records, not verified.
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// userID returns the caller identity, or nil for anonymous requests.
func userID(c *gin.Context) *string {
	id := c.GetString(userIDKey)
	if id == "" {
		return nil
	}
	return &id
}
