package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/session"
)

const userIDKey = "userID"

// Session records the signed-in user id of v under the "userID" key so the
// access log and the rate limiter can attribute the request. It never
// rejects: the services decide which operations need a session.
func Session(v session.Viewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v != nil {
			if id, ok := v.UserID(); ok {
				c.Set(userIDKey, id)
			}
		}
		c.Next()
	}
}
