package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// loggerMiddleware adds a request-scoped zap logger to the request
// context so every log line downstream carries the request id and route.
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.With(
			zap.String("request_id", uuid.NewString()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
		ctx := zapctx.WithLogger(c.Request.Context(), reqLogger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
