package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func (db *Database) ListCategories(ctx context.Context) ([]Category, error) {
	cur, err := db.db.Collection(collCategories).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		zapctx.Error(ctx, "Failed to query categories", zap.Error(err))
		return nil, err
	}
	defer cur.Close(ctx)

	categories := make([]Category, 0)
	if err := cur.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (db *Database) GetCategory(ctx context.Context, id primitive.ObjectID) (*Category, error) {
	var cat Category
	err := db.db.Collection(collCategories).FindOne(ctx, bson.M{"_id": id}).Decode(&cat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &cat, nil
}

func (db *Database) CreateCategory(ctx context.Context, cat Category) (primitive.ObjectID, error) {
	count, err := db.db.Collection(collCategories).CountDocuments(ctx, bson.M{"name": cat.Name})
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to check category name: %w", err)
	}
	if count > 0 {
		return primitive.NilObjectID, ErrDuplicateName
	}

	now := time.Now().UTC()
	cat.ID = primitive.NewObjectID()
	cat.CreatedAt = now
	cat.UpdatedAt = now
	// Manually added categories are never part of the seed set.
	cat.IsDefault = false

	if _, err := db.db.Collection(collCategories).InsertOne(ctx, cat); err != nil {
		zapctx.Error(ctx, "Failed to create category", zap.Error(err), zap.String("name", cat.Name))
		return primitive.NilObjectID, fmt.Errorf("failed to insert category: %w", err)
	}

	zapctx.Info(ctx, "Category created", zap.String("name", cat.Name))
	return cat.ID, nil
}

func (db *Database) UpdateCategory(ctx context.Context, id primitive.ObjectID, name, description, color string) error {
	conflict, err := db.db.Collection(collCategories).CountDocuments(ctx,
		bson.M{"name": name, "_id": bson.M{"$ne": id}})
	if err != nil {
		return fmt.Errorf("failed to check category name: %w", err)
	}
	if conflict > 0 {
		return ErrDuplicateName
	}

	update := bson.M{"$set": bson.M{
		"name":        name,
		"description": description,
		"color":       color,
		"updated_at":  time.Now().UTC(),
	}}
	res, err := db.db.Collection(collCategories).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		zapctx.Error(ctx, "Failed to update category", zap.Error(err), zap.String("id", id.Hex()))
		return fmt.Errorf("failed to update category: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	zapctx.Info(ctx, "Category updated", zap.String("id", id.Hex()), zap.String("name", name))
	return nil
}

// DeleteCategory removes a category unless it is part of the seed set or
// still referenced by rules.
func (db *Database) DeleteCategory(ctx context.Context, id primitive.ObjectID) error {
	cat, err := db.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat.IsDefault {
		return ErrDefaultCategory
	}

	ruleCount, err := db.db.Collection(collRules).CountDocuments(ctx, bson.M{"category_id": id})
	if err != nil {
		return fmt.Errorf("failed to count rules for category: %w", err)
	}
	if ruleCount > 0 {
		return ErrCategoryInUse
	}

	if _, err := db.db.Collection(collCategories).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		zapctx.Error(ctx, "Failed to delete category", zap.Error(err), zap.String("id", id.Hex()))
		return fmt.Errorf("failed to delete category: %w", err)
	}

	zapctx.Info(ctx, "Category deleted", zap.String("id", id.Hex()), zap.String("name", cat.Name))
	return nil
}

// ListRules returns all categorization rules sorted by priority, then
// pattern, which is the evaluation order the categorizer uses.
func (db *Database) ListRules(ctx context.Context) ([]CategorizationRule, error) {
	cur, err := db.db.Collection(collRules).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "pattern", Value: 1}}))
	if err != nil {
		zapctx.Error(ctx, "Failed to query categorization rules", zap.Error(err))
		return nil, err
	}
	defer cur.Close(ctx)

	rules := make([]CategorizationRule, 0)
	if err := cur.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (db *Database) CreateRule(ctx context.Context, rule CategorizationRule) (primitive.ObjectID, error) {
	if _, err := db.GetCategory(ctx, rule.CategoryID); err != nil {
		return primitive.NilObjectID, err
	}

	now := time.Now().UTC()
	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if _, err := db.db.Collection(collRules).InsertOne(ctx, rule); err != nil {
		zapctx.Error(ctx, "Failed to create rule", zap.Error(err), zap.String("pattern", rule.Pattern))
		return primitive.NilObjectID, fmt.Errorf("failed to insert rule: %w", err)
	}

	zapctx.Info(ctx, "Categorization rule created",
		zap.String("type", rule.Type),
		zap.String("pattern", rule.Pattern),
		zap.Int("priority", rule.Priority))
	return rule.ID, nil
}

func (db *Database) UpdateRule(ctx context.Context, id primitive.ObjectID, rule CategorizationRule) error {
	if _, err := db.GetCategory(ctx, rule.CategoryID); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"category_id": rule.CategoryID,
		"type":        rule.Type,
		"mode":        rule.Mode,
		"pattern":     rule.Pattern,
		"priority":    rule.Priority,
		"updated_at":  time.Now().UTC(),
	}}
	res, err := db.db.Collection(collRules).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		zapctx.Error(ctx, "Failed to update rule", zap.Error(err), zap.String("id", id.Hex()))
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	zapctx.Info(ctx, "Categorization rule updated", zap.String("id", id.Hex()))
	return nil
}

func (db *Database) DeleteRule(ctx context.Context, id primitive.ObjectID) error {
	res, err := db.db.Collection(collRules).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		zapctx.Error(ctx, "Failed to delete rule", zap.Error(err), zap.String("id", id.Hex()))
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	zapctx.Info(ctx, "Categorization rule deleted", zap.String("id", id.Hex()))
	return nil
}

// LoadRuleSet fetches rules and categories together for the rule cache.
func (db *Database) LoadRuleSet(ctx context.Context) ([]CategorizationRule, []Category, error) {
	rules, err := db.ListRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	categories, err := db.ListCategories(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rules, categories, nil
}
