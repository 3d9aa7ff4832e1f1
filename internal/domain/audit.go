package domain

import "time"

// AuditEntry is an append-only record of a mutation. Written inside the
// same transaction as the mutation it describes; never read by the core.
type AuditEntry struct {
	ID            string
	EntityType    string // "task", "task_extension"
	EntityID      string
	Operation     string // "create", "status_change", "reassign", ...
	UserID        string
	Timestamp     time.Time
	Changes       map[string]any // fields after the mutation
	PreviousState map[string]any // fields before the mutation
}

// ActivityEntry is a human-readable per-task log line.
type ActivityEntry struct {
	ID        string
	TaskID    string
	Actor     string // "system" for scheduled jobs
	Detail    string
	Timestamp time.Time
}
