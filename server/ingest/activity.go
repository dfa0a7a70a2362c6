package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tekpossible/ems/server/categorize"
	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// NotAvailable fills window title and process name when the agent sent
// none, so downstream reports never deal with empty strings.
const NotAvailable = "N/A"

// ActivityIngestor validates, categorizes and persists activity
// batches.
type ActivityIngestor struct {
	Store       ActivityStore
	Presence    PresenceStore
	Categorizer Categorizer
}

// BatchResult reports the per-entry outcome of one batch.
type BatchResult struct {
	Processed int // entries that passed validation
	Malformed int // entries skipped with a logged reason
	Inserted  int // documents the store acknowledged
}

// rawEntry is the wire shape of one activity entry. Pointer fields
// distinguish absent from empty; duration stays untyped because agents
// have sent numbers, strings and null in that slot.
type rawEntry struct {
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	DurationSeconds any     `json:"duration_seconds"`
	WindowTitle     *string `json:"window_title"`
	ProcessName     *string `json:"process_name"`
	IsActive        *bool   `json:"is_active"`
}

// IngestBatch validates each entry independently: malformed entries are
// skipped and counted, never failing the batch. Records that survive
// validation are bulk-inserted unordered, and the employee's last_seen
// advances only after a fully successful insert.
func (ing *ActivityIngestor) IngestBatch(ctx context.Context, employeeID string, entries []json.RawMessage, receivedAt time.Time) (BatchResult, error) {
	var res BatchResult
	if employeeID == "" {
		return res, &ValidationError{Field: "employee_id", Reason: "missing"}
	}

	records := make([]database.ActivityRecord, 0, len(entries))
	for i, raw := range entries {
		rec, verr := parseEntry(raw)
		if verr != nil {
			res.Malformed++
			zapctx.Warn(ctx, "Skipping malformed activity entry",
				zap.String("employee_id", employeeID),
				zap.Int("index", i),
				zap.String("field", verr.Field),
				zap.String("reason", verr.Reason))
			continue
		}

		rec.EmployeeID = employeeID
		rec.Timestamp = receivedAt
		rec.LogType = database.LogTypeActivity
		rec.CategoryID = ing.Categorizer.Categorize(ctx, categorize.Activity{
			WindowTitle: rec.WindowTitle,
			ProcessName: rec.ProcessName,
		})

		records = append(records, rec)
		res.Processed++
	}

	if len(records) == 0 {
		return res, nil
	}

	inserted, err := ing.Store.InsertActivityRecords(ctx, records)
	res.Inserted = inserted
	if err != nil {
		return res, fmt.Errorf("activity bulk insert: %w", err)
	}

	if err := ing.Presence.TouchEmployee(ctx, employeeID, "", receivedAt); err != nil {
		return res, fmt.Errorf("advance last_seen: %w", err)
	}
	return res, nil
}

// parseEntry validates one entry and normalizes it to a storable
// record. Timestamps must parse; a missing or unusable duration is
// recomputed from the interval as long as the interval itself is sane.
func parseEntry(raw json.RawMessage) (database.ActivityRecord, *ValidationError) {
	var rec database.ActivityRecord

	var entry rawEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return rec, &ValidationError{Field: "entry", Reason: "not a well-formed object"}
	}

	if entry.StartTime == nil {
		return rec, &ValidationError{Field: "start_time", Reason: "missing"}
	}
	start, err := ParseTimestamp(*entry.StartTime)
	if err != nil {
		return rec, &ValidationError{Field: "start_time", Reason: "unparsable"}
	}

	if entry.EndTime == nil {
		return rec, &ValidationError{Field: "end_time", Reason: "missing"}
	}
	end, err := ParseTimestamp(*entry.EndTime)
	if err != nil {
		return rec, &ValidationError{Field: "end_time", Reason: "unparsable"}
	}

	duration, ok := usableDuration(entry.DurationSeconds)
	if !ok {
		span := end.Sub(start).Seconds()
		if span < 0 {
			return rec, &ValidationError{Field: "duration_seconds", Reason: "unusable and end_time precedes start_time"}
		}
		duration = int(span)
	}

	rec.StartTime = start
	rec.EndTime = end
	rec.DurationSeconds = duration
	rec.WindowTitle = NotAvailable
	if entry.WindowTitle != nil && *entry.WindowTitle != "" {
		rec.WindowTitle = *entry.WindowTitle
	}
	rec.ProcessName = NotAvailable
	if entry.ProcessName != nil && *entry.ProcessName != "" {
		rec.ProcessName = *entry.ProcessName
	}
	rec.IsActive = true
	if entry.IsActive != nil {
		rec.IsActive = *entry.IsActive
	}
	return rec, nil
}

// usableDuration accepts a non-negative JSON number; anything else
// (null, string, negative) makes the caller recompute.
func usableDuration(v any) (int, bool) {
	f, isNumber := v.(float64)
	if !isNumber || f < 0 {
		return 0, false
	}
	return int(f), true
}
