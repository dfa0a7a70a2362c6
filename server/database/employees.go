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
	"go.uber.org/zap"
)

// PlaceholderName builds the display name given to an auto-created
// employee when the agent supplied no usable hostname hint.
func PlaceholderName(employeeID string) string {
	short := employeeID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User_" + short
}

// TouchEmployee records contact from an endpoint: it creates the employee
// as pending_rename on first sight and unconditionally advances last_seen
// otherwise. The upsert keys on employee_id, so concurrent first contacts
// collapse into a single document under the unique index.
func (db *Database) TouchEmployee(ctx context.Context, employeeID, displayNameHint string, observedAt time.Time) error {
	displayName := PlaceholderName(employeeID)
	if displayNameHint != "" && displayNameHint != employeeID {
		displayName = displayNameHint
	}

	update := bson.M{
		"$set": bson.M{
			"last_seen":  observedAt,
			"updated_at": observedAt,
		},
		"$setOnInsert": bson.M{
			"employee_id":  employeeID,
			"display_name": displayName,
			"status":       StatusPendingRename,
			"first_seen":   observedAt,
			"created_at":   observedAt,
		},
	}

	res, err := db.db.Collection(collEmployees).UpdateOne(ctx,
		bson.M{"employee_id": employeeID}, update, options.Update().SetUpsert(true))
	if err != nil {
		zapctx.Error(ctx, "Failed to touch employee",
			zap.Error(err),
			zap.String("employee_id", employeeID))
		return fmt.Errorf("failed to touch employee %s: %w", employeeID, err)
	}

	if res.UpsertedCount > 0 {
		zapctx.Info(ctx, "Created new employee record",
			zap.String("employee_id", employeeID),
			zap.String("display_name", displayName))
	}
	return nil
}

func (db *Database) GetEmployee(ctx context.Context, employeeID string) (*Employee, error) {
	var emp Employee
	err := db.db.Collection(collEmployees).
		FindOne(ctx, bson.M{"employee_id": employeeID}).Decode(&emp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee %s: %w", employeeID, err)
	}
	return &emp, nil
}

func (db *Database) ListEmployees(ctx context.Context) ([]Employee, error) {
	cur, err := db.db.Collection(collEmployees).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}}))
	if err != nil {
		zapctx.Error(ctx, "Failed to query employees", zap.Error(err))
		return nil, err
	}
	defer cur.Close(ctx)

	employees := make([]Employee, 0)
	if err := cur.All(ctx, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// ListActiveEmployees returns employees seen within the threshold that
// are not disabled or inactive, for the "active now" sidebar.
func (db *Database) ListActiveEmployees(ctx context.Context, threshold time.Duration) ([]Employee, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	filter := bson.M{
		"last_seen": bson.M{"$gte": cutoff},
		"status":    bson.M{"$in": []string{StatusActive, StatusPendingRename}},
	}

	cur, err := db.db.Collection(collEmployees).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}}).SetLimit(15))
	if err != nil {
		zapctx.Error(ctx, "Failed to query active employees", zap.Error(err))
		return nil, err
	}
	defer cur.Close(ctx)

	employees := make([]Employee, 0)
	if err := cur.All(ctx, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// UpdateEmployee renames an employee and/or changes its status. The
// employee identifier itself is immutable.
func (db *Database) UpdateEmployee(ctx context.Context, employeeID, displayName, status string) error {
	update := bson.M{"updated_at": time.Now().UTC()}
	if displayName != "" {
		update["display_name"] = displayName
	}
	if status != "" {
		update["status"] = status
	}

	res, err := db.db.Collection(collEmployees).UpdateOne(ctx,
		bson.M{"employee_id": employeeID}, bson.M{"$set": update})
	if err != nil {
		zapctx.Error(ctx, "Failed to update employee",
			zap.Error(err),
			zap.String("employee_id", employeeID))
		return fmt.Errorf("failed to update employee %s: %w", employeeID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	zapctx.Info(ctx, "Employee updated",
		zap.String("employee_id", employeeID),
		zap.String("display_name", displayName),
		zap.String("status", status))
	return nil
}

func (db *Database) DeleteEmployee(ctx context.Context, employeeID string) error {
	res, err := db.db.Collection(collEmployees).DeleteOne(ctx, bson.M{"employee_id": employeeID})
	if err != nil {
		zapctx.Error(ctx, "Failed to delete employee",
			zap.Error(err),
			zap.String("employee_id", employeeID))
		return fmt.Errorf("failed to delete employee %s: %w", employeeID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	zapctx.Info(ctx, "Employee deleted", zap.String("employee_id", employeeID))
	return nil
}

// CountPendingRename returns how many auto-created employees still await
// an administrative name.
func (db *Database) CountPendingRename(ctx context.Context) (int64, error) {
	return db.db.Collection(collEmployees).
		CountDocuments(ctx, bson.M{"status": StatusPendingRename})
}
