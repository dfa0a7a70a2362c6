package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tekpossible/ems/server/ingest"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// The agent-facing handlers depend on these narrow interfaces rather
// than the concrete ingestors so they can be tested with fakes.
type activityIngestor interface {
	IngestBatch(ctx context.Context, employeeID string, entries []json.RawMessage, receivedAt time.Time) (ingest.BatchResult, error)
}

type screenshotIngestor interface {
	Ingest(ctx context.Context, employeeID string, capturedAt, receivedAt time.Time, data []byte) (string, error)
}

type presenceTracker interface {
	Touch(ctx context.Context, employeeID, hostname string, observedAt time.Time) error
}

func (s *apiServer) heartbeatHandler(c *gin.Context) {
	var req struct {
		EmployeeID string `json:"employee_id"`
		Hostname   string `json:"hostname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.EmployeeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'employee_id' is required"})
		return
	}

	ctx := c.Request.Context()
	if err := s.presence.Touch(ctx, req.EmployeeID, req.Hostname, time.Now().UTC()); err != nil {
		zapctx.Error(ctx, "Heartbeat failed", zap.Error(err), zap.String("employee_id", req.EmployeeID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record heartbeat"})
		return
	}

	heartbeatsTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *apiServer) logActivityHandler(c *gin.Context) {
	var req struct {
		EmployeeID string             `json:"employee_id"`
		Activities *[]json.RawMessage `json:"activities"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.EmployeeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'employee_id' is required"})
		return
	}
	if req.Activities == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'activities' must be a list"})
		return
	}
	if len(*req.Activities) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "No activities to log"})
		return
	}

	ctx := c.Request.Context()
	res, err := s.activity.IngestBatch(ctx, req.EmployeeID, *req.Activities, time.Now().UTC())

	activityEntriesTotal.WithLabelValues("processed").Add(float64(res.Processed))
	activityEntriesTotal.WithLabelValues("malformed").Add(float64(res.Malformed))
	activityEntriesTotal.WithLabelValues("inserted").Add(float64(res.Inserted))

	if err != nil {
		if ingest.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		zapctx.Error(ctx, "Activity batch failed",
			zap.Error(err),
			zap.String("employee_id", req.EmployeeID),
			zap.Int("inserted", res.Inserted))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "Database error during bulk insert of activity logs",
			"inserted_count": res.Inserted,
		})
		return
	}

	if res.Processed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "All provided activity entries were malformed",
			"malformed_count": res.Malformed,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":          "ok",
		"processed":       res.Processed,
		"inserted_count":  res.Inserted,
		"malformed_count": res.Malformed,
	})
}

func (s *apiServer) uploadScreenshotHandler(c *gin.Context) {
	employeeID := c.PostForm("employee_id")
	if employeeID == "" {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "'employee_id' is required"})
		return
	}

	tsStr := c.PostForm("timestamp")
	if tsStr == "" {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "'timestamp' is required"})
		return
	}
	capturedAt, err := ingest.ParseTimestamp(tsStr)
	if err != nil {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "'timestamp' is not a valid timestamp"})
		return
	}

	fileHeader, err := c.FormFile("screenshot")
	if err != nil {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "'screenshot' file part is required"})
		return
	}
	if fileHeader.Filename == "" {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}
	if s.maxUploadBytes > 0 && fileHeader.Size > s.maxUploadBytes {
		screenshotUploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Screenshot exceeds the upload size limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		screenshotUploadsTotal.WithLabelValues("failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		screenshotUploadsTotal.WithLabelValues("failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	ctx := c.Request.Context()
	key, err := s.screenshots.Ingest(ctx, employeeID, capturedAt, time.Now().UTC(), data)
	if err != nil {
		switch {
		case ingest.IsValidation(err):
			screenshotUploadsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ingest.ErrPayloadTooLarge):
			screenshotUploadsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Screenshot exceeds the upload size limit"})
		default:
			screenshotUploadsTotal.WithLabelValues("failed").Inc()
			zapctx.Error(ctx, "Screenshot upload failed",
				zap.Error(err),
				zap.String("employee_id", employeeID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store screenshot"})
		}
		return
	}

	screenshotUploadsTotal.WithLabelValues("stored").Inc()
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "filename": key})
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
