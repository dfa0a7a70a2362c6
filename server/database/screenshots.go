package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// InsertScreenshotRecord writes the metadata document for an already
// persisted blob. The caller is responsible for rolling the blob back if
// this fails.
func (db *Database) InsertScreenshotRecord(ctx context.Context, rec ScreenshotRecord) error {
	rec.LogType = LogTypeScreenshot

	if _, err := db.db.Collection(collActivityLogs).InsertOne(ctx, rec); err != nil {
		zapctx.Error(ctx, "Failed to insert screenshot metadata",
			zap.Error(err),
			zap.String("employee_id", rec.EmployeeID),
			zap.String("screenshot_path", rec.ScreenshotPath))
		return fmt.Errorf("failed to insert screenshot record: %w", err)
	}

	return nil
}

func (db *Database) ListScreenshotsByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]ScreenshotRecord, error) {
	filter := bson.M{
		"log_type":    LogTypeScreenshot,
		"employee_id": employeeID,
		"timestamp":   bson.M{"$gte": from, "$lte": to},
	}
	cur, err := db.db.Collection(collActivityLogs).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		zapctx.Error(ctx, "Failed to query screenshots",
			zap.Error(err),
			zap.String("employee_id", employeeID))
		return nil, err
	}
	defer cur.Close(ctx)

	records := make([]ScreenshotRecord, 0)
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
