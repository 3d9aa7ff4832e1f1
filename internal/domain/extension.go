package domain

import "time"

type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

// MinExtensionReasonLen is the shortest acceptable justification for
// moving a due date.
const MinExtensionReasonLen = 20

// TaskExtension is a request to move a task's effective due date. It is
// created pending and transitions exactly once, to approved or rejected.
type TaskExtension struct {
	ID               string
	TaskID           string
	RequestedBy      string
	Reason           string
	CurrentDueDate   time.Time
	RequestedDueDate time.Time
	Status           ExtensionStatus
	ProcessedBy      string
	ProcessedAt      *time.Time
	CreatedAt        time.Time
}
