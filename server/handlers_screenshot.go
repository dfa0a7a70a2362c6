package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// downloadScreenshotHandler streams a stored screenshot binary back to
// the dashboard. The key is the object name returned at upload time.
func (s *apiServer) downloadScreenshotHandler(c *gin.Context) {
	key := c.Param("key")
	if key == "" || strings.Contains(key, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid screenshot key"})
		return
	}

	ctx := c.Request.Context()
	reader, size, err := s.st.GetScreenshot(ctx, key)
	if err != nil {
		zapctx.Warn(ctx, "Screenshot not found in blob store",
			zap.Error(err),
			zap.String("key", key))
		c.JSON(http.StatusNotFound, gin.H{"error": "Screenshot not found"})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, size, "image/png", reader, map[string]string{
		"Content-Disposition": `inline; filename="` + key + `"`,
	})
}
