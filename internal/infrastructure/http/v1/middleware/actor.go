package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "orderflow/internal/core/context"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
)

// Actor records the caller identity forwarded by the gateway. Requests
// without the header run as the system actor.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID := c.GetHeader(HeaderActorID); actorID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{
				ID:   actorID,
				Name: c.GetHeader(HeaderActorName),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
