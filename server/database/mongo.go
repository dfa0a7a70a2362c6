package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Sentinel errors surfaced to handlers so they can pick a status code.
var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicateName   = errors.New("name already exists")
	ErrDefaultCategory = errors.New("default category cannot be deleted")
	ErrCategoryInUse   = errors.New("category has associated rules")
)

// Collection names.
const (
	collEmployees    = "employees"
	collActivityLogs = "activity_logs"
	collCategories   = "categories"
	collRules        = "categorization_rules"
)

// Database is the structured half of the storage gateway, backed by
// MongoDB. The blob half lives in the storage package.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri, dbName string) (*Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Database{client: client, db: client.Database(dbName)}, nil
}

func (db *Database) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// EnsureSchema creates the indexes the ingestion path depends on and
// seeds the default categories when the collection is empty. Safe to run
// on every startup.
func (db *Database) EnsureSchema(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collEmployees: {
			{Keys: bson.D{{Key: "employee_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "last_seen", Value: -1}}},
		},
		collActivityLogs: {
			{Keys: bson.D{{Key: "employee_id", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "category_id", Value: 1}}},
			{Keys: bson.D{{Key: "log_type", Value: 1}}},
			{Keys: bson.D{{Key: "process_name", Value: 1}}},
		},
		collCategories: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collRules: {
			{Keys: bson.D{{Key: "category_id", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "pattern", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			zapctx.Error(ctx, "Failed to ensure indexes",
				zap.Error(err),
				zap.String("collection", coll))
			return fmt.Errorf("failed to ensure indexes on %s: %w", coll, err)
		}
	}

	if err := db.seedDefaultCategories(ctx); err != nil {
		return err
	}

	zapctx.Info(ctx, "Database schema check completed")
	return nil
}

// seedDefaultCategories inserts the seed category set once, so the
// categorizer always has a fallback to hand out.
func (db *Database) seedDefaultCategories(ctx context.Context) error {
	count, err := db.db.Collection(collCategories).CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	seed := []interface{}{
		Category{Name: "Productive", Description: "Work-related tasks and applications.",
			Color: "#2ecc71", IsDefault: true, CreatedAt: now, UpdatedAt: now},
		Category{Name: "Unproductive", Description: "Non-work related activities, distractions.",
			Color: "#e74c3c", IsDefault: true, CreatedAt: now, UpdatedAt: now},
		Category{Name: "Neutral/Undefined", Description: "General system usage or uncategorized activities.",
			Color: "#95a5a6", IsDefault: true, IsFallback: true, CreatedAt: now, UpdatedAt: now},
	}

	if _, err := db.db.Collection(collCategories).InsertMany(ctx, seed); err != nil {
		zapctx.Error(ctx, "Failed to seed default categories", zap.Error(err))
		return fmt.Errorf("failed to seed default categories: %w", err)
	}

	zapctx.Info(ctx, "Seeded default categories", zap.Int("count", len(seed)))
	return nil
}
