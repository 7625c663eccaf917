package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/idbroker/internal/api/models"
)

// Recovery turns a handler panic into a problem+json 500 response.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			logger.Error("panic recovered",
				"error", rec,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(RequestIDKey),
				"stack", string(debug.Stack()),
			)

			models.RespondWithError(c, models.NewInternalError(
				c.Request.URL.Path,
				"An unexpected error occurred",
			))
			c.Abort()
		}()

		c.Next()
	}
}
