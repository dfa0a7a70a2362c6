package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// apiKeyMiddleware guards the agent-facing ingestion endpoints. Agents
// authenticate with a shared key in the X-API-Key header; the compare is
// constant-time so the key cannot be probed byte by byte.
func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	key := []byte(apiKey)
	return func(c *gin.Context) {
		presented := []byte(c.GetHeader("X-API-Key"))
		if len(presented) == 0 || subtle.ConstantTimeCompare(key, presented) != 1 {
			zapctx.Warn(c.Request.Context(), "Rejected request with invalid API key",
				zap.String("remote_addr", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API key"})
			return
		}
		c.Next()
	}
}
