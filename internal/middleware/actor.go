package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ActorHeader carries the id of the operator or subject making the request.
// Authentication happens upstream; the API only propagates the identity.
const ActorHeader = "X-Actor-ID"

// Actor stores the caller id from ActorHeader in the context
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorHeader)
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid " + ActorHeader + " header",
			})
			return
		}
		c.Set("userID", uint(id))
		c.Next()
	}
}

// GetUserID extracts the caller id from the Gin context
func GetUserID(c *gin.Context) uint {
	userID, exists := c.Get("userID")
	if !exists {
		return 0
	}
	id, _ := userID.(uint)
	return id
}
