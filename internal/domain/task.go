package domain

import "time"

// Status is a task lifecycle state. Transitions between statuses are
// validated by the lifecycle package; nothing else should mutate status.
type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusAssigned          Status = "assigned"
	StatusInProgress        Status = "in_progress"
	StatusBlocked           Status = "blocked"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusOnHold            Status = "on_hold"
	StatusPendingReview     Status = "pending_review"
	StatusRevisionRequested Status = "revision_requested"
	StatusOverdue           Status = "overdue"
)

// IsClosed reports whether the status ends active work on a task.
// Closed tasks are never overdue and cannot be completed or reassigned.
func (s Status) IsClosed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether p is one of the four known levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type Task struct {
	ID          string
	Number      int64 // human-readable sequential number
	Title       string
	Description string
	Status      Status
	Priority    Priority
	AssignedTo  []string // user ids; order carries no meaning
	Progress    int      // 0..100

	DueDate         *time.Time
	FinalTargetDate *time.Time // set only by an approved extension
	CompletedAt     *time.Time
	CompletedBy     string

	Verification *VerificationStatus
	KRAID        string // optional link to a key result area

	OverdueResumptionReason string
	OverdueResumedAt        *time.Time
	OverdueResumedBy        string

	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveDue returns the date a task is actually held to: the approved
// extension target when one exists, the original due date otherwise, nil
// when the task has no due date at all.
func (t Task) EffectiveDue() *time.Time {
	if t.FinalTargetDate != nil {
		return t.FinalTargetDate
	}
	return t.DueDate
}

// AssignedUser reports whether userID is among the task's assignees.
func (t Task) AssignedUser(userID string) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// RelevantDate is the timestamp a task is attributed to when scoring a
// period: completion time when completed, else last update, else creation.
func (t Task) RelevantDate() time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// SameAssignees reports whether the two assignee lists contain the same
// set of user ids, ignoring order and duplicates.
func SameAssignees(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	for _, id := range b {
		delete(set, id)
	}
	return len(set) == 0
}
