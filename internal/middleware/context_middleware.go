package middleware

import (
	"rollcall/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextLogger attaches a request-scoped zap logger and request id to the
// standard context so services and repos never depend on gin directly.
func ContextLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// Reuse the id set by the RequestID middleware when present.
		rid := contextutil.GetRequestID(ctx)
		if rid == "" {
			if rid = c.GetHeader("X-Request-ID"); rid == "" {
				rid = uuid.New().String()
			}
			c.Header("X-Request-ID", rid)
		}

		reqLogger := logger.With(
			zap.String("request_id", rid),
		)

		ctx = contextutil.WithRequestID(ctx, rid)
		ctx = contextutil.WithLogger(ctx, reqLogger)

		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
