package ingest

import (
	"context"
	"time"
)

// PresenceTracker handles heartbeat-driven liveness. First contact from
// an unknown agent creates the employee in pending_rename state, so
// new machines show up without manual registration.
type PresenceTracker struct {
	Store PresenceStore
}

// Touch records that the employee was alive at observedAt. hostname, if
// non-empty, seeds the display name of a newly created employee.
func (p *PresenceTracker) Touch(ctx context.Context, employeeID, hostname string, observedAt time.Time) error {
	if employeeID == "" {
		return &ValidationError{Field: "employee_id", Reason: "missing"}
	}
	return p.Store.TouchEmployee(ctx, employeeID, hostname, observedAt)
}
