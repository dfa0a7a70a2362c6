package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// ErrPayloadTooLarge is returned when a screenshot exceeds the
// configured upload limit.
var ErrPayloadTooLarge = errors.New("screenshot payload too large")

// ScreenshotIngestor writes the blob first, then the metadata document,
// then advances presence. A failed metadata write rolls the blob back
// so the store never accumulates unreferenced binaries.
type ScreenshotIngestor struct {
	Blobs    BlobStore
	Store    ScreenshotStore
	Presence PresenceStore
	MaxBytes int64
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeEmployeeID maps an employee id to a string safe for object
// keys. Disallowed characters become underscores; an empty id becomes
// a sentinel rather than vanishing from the key.
func SanitizeEmployeeID(id string) string {
	safe := unsafeIDChars.ReplaceAllString(id, "_")
	if safe == "" {
		return "unknown_emp"
	}
	return safe
}

// ObjectKey builds the storage key for one screenshot:
// <yyyymmdd_hhmmss_microseconds>_<sanitized id>_<random suffix>.png.
// The random suffix keeps same-second captures from colliding.
func ObjectKey(capturedAt time.Time, employeeID string) string {
	u := uuid.New()
	suffix := hex.EncodeToString(u[:])[:8]
	return fmt.Sprintf("%s_%06d_%s_%s.png",
		capturedAt.UTC().Format("20060102_150405"),
		capturedAt.Nanosecond()/1000,
		SanitizeEmployeeID(employeeID),
		suffix)
}

// Ingest stores one screenshot and returns the object key it was filed
// under.
func (ing *ScreenshotIngestor) Ingest(ctx context.Context, employeeID string, capturedAt, receivedAt time.Time, data []byte) (string, error) {
	if employeeID == "" {
		return "", &ValidationError{Field: "employee_id", Reason: "missing"}
	}
	if capturedAt.IsZero() {
		return "", &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	if len(data) == 0 {
		return "", &ValidationError{Field: "screenshot", Reason: "empty payload"}
	}
	if ing.MaxBytes > 0 && int64(len(data)) > ing.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	key := ObjectKey(capturedAt, employeeID)

	if err := ing.Blobs.PutScreenshot(ctx, key, data); err != nil {
		return "", fmt.Errorf("store screenshot blob: %w", err)
	}

	rec := database.ScreenshotRecord{
		EmployeeID:     employeeID,
		Timestamp:      capturedAt,
		LogType:        database.LogTypeScreenshot,
		ScreenshotPath: key,
	}
	if err := ing.Store.InsertScreenshotRecord(ctx, rec); err != nil {
		// Best effort rollback; an orphaned blob is logged, not fatal.
		if rerr := ing.Blobs.RemoveScreenshot(ctx, key); rerr != nil {
			zapctx.Error(ctx, "Failed to roll back screenshot blob after metadata failure",
				zap.Error(rerr),
				zap.String("key", key))
		}
		return "", fmt.Errorf("store screenshot metadata: %w", err)
	}

	if err := ing.Presence.TouchEmployee(ctx, employeeID, "", receivedAt); err != nil {
		return "", fmt.Errorf("advance last_seen: %w", err)
	}

	zapctx.Info(ctx, "Screenshot stored",
		zap.String("employee_id", employeeID),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return key, nil
}
