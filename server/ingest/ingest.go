// Package ingest implements the write path for agent telemetry:
// activity batches, screenshot uploads and presence heartbeats. It
// validates and normalizes payloads before they reach storage; HTTP
// handlers stay thin on top of it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tekpossible/ems/server/categorize"
	"github.com/tekpossible/ems/server/database"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ValidationError marks a payload defect the agent must fix; callers
// map it to a 4xx response instead of a server error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// ActivityStore persists validated activity records.
type ActivityStore interface {
	InsertActivityRecords(ctx context.Context, records []database.ActivityRecord) (int, error)
}

// ScreenshotStore persists screenshot metadata documents.
type ScreenshotStore interface {
	InsertScreenshotRecord(ctx context.Context, rec database.ScreenshotRecord) error
}

// PresenceStore advances employee liveness, creating the employee on
// first contact.
type PresenceStore interface {
	TouchEmployee(ctx context.Context, employeeID, displayNameHint string, observedAt time.Time) error
}

// BlobStore holds screenshot binaries.
type BlobStore interface {
	PutScreenshot(ctx context.Context, key string, data []byte) error
	RemoveScreenshot(ctx context.Context, key string) error
}

// Categorizer maps one activity to a category id, nil when
// uncategorizable.
type Categorizer interface {
	Categorize(ctx context.Context, act categorize.Activity) *primitive.ObjectID
}

// timestampLayouts accepts RFC 3339 (with or without sub-seconds and
// offset) plus the naive ISO form older agents send.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an agent-supplied timestamp. Naive values are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
