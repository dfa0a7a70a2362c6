package database

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Employee lifecycle statuses. New endpoints check in as pending_rename
// until an admin gives them a real display name.
const (
	StatusPendingRename = "pending_rename"
	StatusActive        = "active"
	StatusInactive      = "inactive"
	StatusDisabled      = "disabled"
)

// Log types stored in the activity_logs collection. Activity periods and
// screenshot metadata share the collection, discriminated by log_type.
const (
	LogTypeActivity   = "activity"
	LogTypeScreenshot = "screenshot"
)

// Categorization rule types.
const (
	RuleTypeProcessName   = "process_name"
	RuleTypeWindowTitle   = "window_title_keyword"
	RuleTypeWebsiteDomain = "website_domain"
)

// Rule match modes.
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
	MatchEndsWith   = "ends_with"
)

type Employee struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID  string             `bson:"employee_id" json:"employee_id"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	Status      string             `bson:"status" json:"status"`
	FirstSeen   time.Time          `bson:"first_seen" json:"first_seen"`
	LastSeen    time.Time          `bson:"last_seen" json:"last_seen"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// ActivityRecord is one contiguous foreground-window period on one
// endpoint. Timestamp is the server receipt time of the batch that
// carried it, distinct from the activity's own start/end.
type ActivityRecord struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	EmployeeID      string              `bson:"employee_id" json:"employee_id"`
	Timestamp       time.Time           `bson:"timestamp" json:"timestamp"`
	WindowTitle     string              `bson:"window_title" json:"window_title"`
	ProcessName     string              `bson:"process_name" json:"process_name"`
	StartTime       time.Time           `bson:"start_time" json:"start_time"`
	EndTime         time.Time           `bson:"end_time" json:"end_time"`
	DurationSeconds int                 `bson:"duration_seconds" json:"duration_seconds"`
	IsActive        bool                `bson:"is_active" json:"is_active"`
	CategoryID      *primitive.ObjectID `bson:"category_id" json:"category_id"`
	LogType         string              `bson:"log_type" json:"log_type"`
}

// ScreenshotRecord is the metadata half of a stored screenshot; the
// binary lives in the blob store under ScreenshotPath.
type ScreenshotRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID     string             `bson:"employee_id" json:"employee_id"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
	LogType        string             `bson:"log_type" json:"log_type"`
	ScreenshotPath string             `bson:"screenshot_path" json:"screenshot_path"`
}

type Category struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Color       string             `bson:"color" json:"color"`
	IsDefault   bool               `bson:"is_default" json:"is_default"`
	IsFallback  bool               `bson:"is_fallback" json:"is_fallback"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// CategorizationRule maps an observable activity attribute onto a
// category. Lower priority evaluates first; ties break on pattern order.
type CategorizationRule struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CategoryID primitive.ObjectID `bson:"category_id" json:"category_id"`
	Type       string             `bson:"type" json:"type"`
	Mode       string             `bson:"mode" json:"mode"`
	Pattern    string             `bson:"pattern" json:"pattern"`
	Priority   int                `bson:"priority" json:"priority"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// ValidRuleType reports whether t is a known rule type.
func ValidRuleType(t string) bool {
	switch t {
	case RuleTypeProcessName, RuleTypeWindowTitle, RuleTypeWebsiteDomain:
		return true
	}
	return false
}

// ValidMatchMode reports whether m is a known match mode.
func ValidMatchMode(m string) bool {
	switch m {
	case MatchExact, MatchContains, MatchStartsWith, MatchEndsWith:
		return true
	}
	return false
}
