package lifecycle

import (
	"fmt"
	"time"

	"taskpulse/internal/domain"
)

// Check is a validator verdict. A failed check carries a human-readable
// Reason; warnings may accompany a passing check and signal conditions
// the caller must explicitly override (force) or surface.
type Check struct {
	OK       bool
	Reason   string
	Warnings []string
}

func ok(warnings ...string) Check { return Check{OK: true, Warnings: warnings} }
func fail(reason string) Check    { return Check{OK: false, Reason: reason} }

// minResumeReasonLen gates resuming an overdue task without an approved
// extension.
const minResumeReasonLen = 10

// backdateWarnDays is how far back a completion may be dated before it
// draws a warning.
const backdateWarnDays = 7

// ValidateCompletion checks that a task can be marked completed.
func ValidateCompletion(t domain.Task) Check {
	if len(t.AssignedTo) == 0 {
		return fail("task has no assignees")
	}
	if t.Status == domain.StatusCancelled {
		return fail("cancelled tasks cannot be completed")
	}
	if t.Status == domain.StatusOverdue && t.FinalTargetDate == nil {
		return ok("completing an overdue task without an approved extension")
	}
	return ok()
}

// IsTaskOverdue reports whether a task is past its effective due date as
// of now. The comparison is between UTC calendar dates, not instants: a
// task is never overdue during its due day, only strictly after it.
// Closed tasks are never overdue.
func IsTaskOverdue(t domain.Task, now time.Time) bool {
	due := t.EffectiveDue()
	if due == nil || t.Status.IsClosed() {
		return false
	}
	return utcDate(now).After(utcDate(*due))
}

// utcDate truncates an instant to midnight of its UTC calendar day.
func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateOverdueResumption checks whether an overdue task may move back
// to in_progress. Requires either an approved extension or a meaningful
// reason. Tasks not currently overdue pass unconditionally.
func ValidateOverdueResumption(t domain.Task, ext *domain.TaskExtension, reason string) Check {
	if t.Status != domain.StatusOverdue {
		return ok()
	}
	if ext != nil && ext.TaskID != t.ID {
		return fail(fmt.Sprintf("extension %s belongs to a different task", ext.ID))
	}
	if ext != nil && ext.Status == domain.ExtensionApproved {
		return ok()
	}
	if len(reason) > minResumeReasonLen {
		return ok()
	}
	return fail(fmt.Sprintf("resuming an overdue task requires an approved extension or a reason longer than %d characters", minResumeReasonLen))
}

// ValidateReassignment checks a proposed assignee change requested by
// actor. No rule keys off the actor yet; self-service restrictions
// would live here.
func ValidateReassignment(t domain.Task, newAssignees []string, actor string) Check {
	if len(newAssignees) == 0 {
		return fail("new assignee list is empty")
	}
	if t.Status.IsClosed() {
		return fail(fmt.Sprintf("cannot reassign a %s task", t.Status))
	}
	var warnings []string
	if t.Status == domain.StatusInProgress || t.Status == domain.StatusPendingReview {
		warnings = append(warnings, fmt.Sprintf("reassigning a task that is %s risks losing in-flight work", t.Status))
	}
	if domain.SameAssignees(t.AssignedTo, newAssignees) {
		warnings = append(warnings, "new assignees are identical to current assignees")
	}
	return ok(warnings...)
}

// ValidateDeletion never fails, but its warnings require the caller to
// pass force before the delete proceeds.
func ValidateDeletion(t domain.Task) Check {
	var warnings []string
	if t.Status == domain.StatusCompleted {
		warnings = append(warnings, "deleting a completed task affects historical performance metrics")
	}
	if t.KRAID != "" {
		warnings = append(warnings, "task is linked to a KRA; deleting it affects KRA progress")
	}
	return ok(warnings...)
}

// ValidateBackdating checks an explicit completion timestamp earlier
// than now.
func ValidateBackdating(t domain.Task, completedAt, now time.Time) Check {
	if completedAt.Before(t.CreatedAt) {
		return fail("completion date cannot precede task creation")
	}
	if completedAt.After(now) {
		return fail("completion date cannot be in the future")
	}
	var warnings []string
	if now.Sub(completedAt) > backdateWarnDays*24*time.Hour {
		warnings = append(warnings, fmt.Sprintf("completion backdated more than %d days", backdateWarnDays))
	}
	if t.Status == domain.StatusOverdue && t.DueDate != nil && !completedAt.After(*t.DueDate) {
		warnings = append(warnings, "backdated completion would retroactively mark an overdue task as on time")
	}
	return ok(warnings...)
}

// ValidateExtensionRequest checks a request to move a task's due date.
func ValidateExtensionRequest(t domain.Task, requestedDue time.Time, reason string) Check {
	if t.DueDate == nil {
		return fail("task has no due date to extend")
	}
	if t.Status.IsClosed() {
		return fail(fmt.Sprintf("cannot extend a %s task", t.Status))
	}
	if len(reason) < domain.MinExtensionReasonLen {
		return fail(fmt.Sprintf("reason must be at least %d characters", domain.MinExtensionReasonLen))
	}
	if !requestedDue.After(*t.EffectiveDue()) {
		return fail("requested due date must be after the current due date")
	}
	return ok()
}

// ValidateVerification checks recording a review outcome on a task.
// Only completed work can be verified, and a verdict is final.
func ValidateVerification(t domain.Task, outcome domain.VerificationStatus) Check {
	if outcome != domain.VerificationVerified && outcome != domain.VerificationRejected {
		return fail(fmt.Sprintf("unknown verification outcome %q", outcome))
	}
	if t.Status != domain.StatusCompleted && t.CompletedAt == nil {
		return fail("only completed tasks can be verified")
	}
	if t.Verification != nil && *t.Verification != domain.VerificationPending {
		return fail(fmt.Sprintf("task verification already recorded as %s", *t.Verification))
	}
	return ok()
}

// ValidatePriorityChange never fails; warnings flag risky changes.
func ValidatePriorityChange(t domain.Task, newPriority domain.Priority, reason string) Check {
	var warnings []string
	if newPriority == domain.PriorityCritical && t.Priority != domain.PriorityCritical && len(reason) < 10 {
		warnings = append(warnings, "escalation to critical priority without a stated reason")
	}
	if t.Status == domain.StatusOverdue && priorityRank(newPriority) < priorityRank(t.Priority) {
		warnings = append(warnings, "downgrading priority of an overdue task")
	}
	return ok(warnings...)
}

func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityLow:
		return 0
	case domain.PriorityMedium:
		return 1
	case domain.PriorityHigh:
		return 2
	case domain.PriorityCritical:
		return 3
	}
	return -1
}
