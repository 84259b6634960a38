package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Deadline bounds the request context. Handlers see the deadline through
// c.Request.Context() and report it themselves; a handler that returns
// without writing after the deadline gets a 504 TIMEOUT body.
func Deadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if c.Writer.Written() || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
			"error": gin.H{
				"code":    "TIMEOUT",
				"message": "request timed out",
				"details": nil,
			},
		})
	}
}
