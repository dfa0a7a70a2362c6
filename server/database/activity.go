package database

import (
	"context"
	"time"

	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// InsertActivityRecords bulk-inserts a validated batch. The write is
// unordered, so one document's failure does not block the rest of the
// batch from landing; the returned count reflects what actually landed
// even when err is non-nil.
func (db *Database) InsertActivityRecords(ctx context.Context, records []ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	start := time.Now()
	res, err := db.db.Collection(collActivityLogs).
		InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))

	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}

	elapsed := time.Since(start)
	if err != nil {
		zapctx.Error(ctx, "Bulk insert of activity records failed",
			zap.Error(err),
			zap.Int("attempted", len(records)),
			zap.Int("inserted", inserted),
			zap.Duration("duration", elapsed))
		return inserted, err
	}

	if elapsed > 100*time.Millisecond {
		zapctx.Warn(ctx, "Slow bulk insert detected",
			zap.Duration("duration", elapsed),
			zap.Int("count", inserted))
	}

	return inserted, nil
}

func (db *Database) ListRecentActivity(ctx context.Context, limit int64) ([]ActivityRecord, error) {
	filter := bson.M{"log_type": LogTypeActivity}
	cur, err := db.db.Collection(collActivityLogs).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		zapctx.Error(ctx, "Failed to query recent activity", zap.Error(err), zap.Int64("limit", limit))
		return nil, err
	}
	defer cur.Close(ctx)

	records := make([]ActivityRecord, 0)
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (db *Database) ListActivityByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]ActivityRecord, error) {
	filter := bson.M{
		"log_type":    LogTypeActivity,
		"employee_id": employeeID,
		"timestamp":   bson.M{"$gte": from, "$lte": to},
	}
	cur, err := db.db.Collection(collActivityLogs).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		zapctx.Error(ctx, "Failed to query activity by employee",
			zap.Error(err),
			zap.String("employee_id", employeeID))
		return nil, err
	}
	defer cur.Close(ctx)

	records := make([]ActivityRecord, 0)
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
