package taskops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
	"taskpulse/internal/lifecycle"
)

type CreateInput struct {
	Title       string
	Description string
	Priority    domain.Priority
	AssignedTo  []string
	DueDate     *time.Time
	KRAID       string
	Actor       string
}

type CreateResult struct {
	Result
	TaskID string `json:"task_id,omitempty"`
	Number int64  `json:"number,omitempty"`
}

// Create opens a new task. The sequential task number comes from the
// store's transactional counter; everything else lands in one batch.
func (s *Service) Create(ctx context.Context, in CreateInput) CreateResult {
	if in.Title == "" {
		return CreateResult{Result: failure("title is required")}
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(in.Priority) {
		return CreateResult{Result: failure(fmt.Sprintf("unknown priority %q", in.Priority))}
	}
	assignees := dedupe(in.AssignedTo)
	for _, id := range assignees {
		exists, err := s.users.UserExists(ctx, id)
		if err != nil {
			return CreateResult{Result: s.storeFailure("create", err)}
		}
		if !exists {
			return CreateResult{Result: failure(fmt.Sprintf("assignee %s does not exist", id))}
		}
	}

	number, err := s.store.NextNumber(ctx, "tasks")
	if err != nil {
		return CreateResult{Result: s.storeFailure("create", err)}
	}

	now := s.now()
	status := domain.StatusNotStarted
	if len(assignees) > 0 {
		status = domain.StatusAssigned
	}
	t := domain.Task{
		ID:          "tsk_" + uuid.NewString(),
		Number:      number,
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		Priority:    in.Priority,
		AssignedTo:  assignees,
		DueDate:     in.DueDate,
		KRAID:       in.KRAID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Audit:    s.audit("task", t.ID, "create", in.Actor, domain.Task{}, t),
		Activity: s.activity(t.ID, in.Actor, fmt.Sprintf("task #%d created", number)),
	})
	if err != nil {
		return CreateResult{Result: s.storeFailure("create", err)}
	}
	return CreateResult{Result: success(), TaskID: t.ID, Number: number}
}

type UpdateStatusInput struct {
	TaskID string
	To     domain.Status
	Actor  string

	// CompletedAt backdates a completion; nil means now.
	CompletedAt *time.Time
	// ResumeReason and ExtensionID authorize leaving overdue.
	ResumeReason string
	ExtensionID  string
}

// UpdateStatus moves a task along the status graph.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) Result {
	t, err := s.store.GetTask(ctx, in.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("update_status", err)
	}

	if err := lifecycle.ValidateStatusTransition(t.Status, in.To); err != nil {
		return failure(err.Error())
	}

	now := s.now()
	before := t
	var warnings []string
	recalcReason := domain.RecalcTaskUpdate

	if in.To == domain.StatusCompleted {
		c := lifecycle.ValidateCompletion(t)
		if !c.OK {
			return failure(c.Reason)
		}
		warnings = append(warnings, c.Warnings...)

		completedAt := now
		if in.CompletedAt != nil {
			bc := lifecycle.ValidateBackdating(t, *in.CompletedAt, now)
			if !bc.OK {
				return failure(bc.Reason)
			}
			warnings = append(warnings, bc.Warnings...)
			completedAt = *in.CompletedAt
			recalcReason = domain.RecalcBackdatedCompletion
		}
		t.CompletedAt = &completedAt
		t.CompletedBy = in.Actor
		t.Progress = 100
	}

	if t.Status == domain.StatusOverdue && in.To == domain.StatusInProgress {
		var ext *domain.TaskExtension
		if in.ExtensionID != "" {
			e, err := s.store.GetExtension(ctx, in.ExtensionID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return failure("extension not found")
				}
				return s.storeFailure("update_status", err)
			}
			ext = &e
		}
		c := lifecycle.ValidateOverdueResumption(t, ext, in.ResumeReason)
		if !c.OK {
			return failure(c.Reason)
		}
		reason := in.ResumeReason
		if reason == "" && ext != nil {
			reason = "approved extension " + ext.ID
		}
		t.OverdueResumptionReason = reason
		t.OverdueResumedAt = &now
		t.OverdueResumedBy = in.Actor
	}

	t.Status = in.To
	t.UpdatedAt = now

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Audit:    s.audit("task", t.ID, "status_change", in.Actor, before, t),
		Activity: s.activity(t.ID, in.Actor, fmt.Sprintf("status changed from %s to %s", before.Status, t.Status)),
	})
	if err != nil {
		return s.storeFailure("update_status", err)
	}

	// A revision request keeps the completion timestamp but changes the
	// task's quality points, so it is score-affecting too.
	if in.To == domain.StatusCompleted || in.To == domain.StatusRevisionRequested {
		for _, userID := range t.AssignedTo {
			s.recalcs.Queue(ctx, userID, recalcReason, t.ID, in.Actor)
		}
	}
	return success(warnings...)
}

// Reassign replaces a task's assignee set. Every new assignee must
// resolve in the directory before anything is written.
func (s *Service) Reassign(ctx context.Context, taskID string, newAssignees []string, actor string) Result {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("reassign", err)
	}

	newAssignees = dedupe(newAssignees)
	c := lifecycle.ValidateReassignment(t, newAssignees, actor)
	if !c.OK {
		return failure(c.Reason)
	}

	for _, id := range newAssignees {
		exists, err := s.users.UserExists(ctx, id)
		if err != nil {
			return s.storeFailure("reassign", err)
		}
		if !exists {
			return failure(fmt.Sprintf("assignee %s does not exist", id))
		}
	}

	before := t
	t.AssignedTo = newAssignees
	t.UpdatedAt = s.now()

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Audit:    s.audit("task", t.ID, "reassign", actor, before, t),
		Activity: s.activity(t.ID, actor, fmt.Sprintf("reassigned to %v", newAssignees)),
	})
	if err != nil {
		return s.storeFailure("reassign", err)
	}

	for _, userID := range union(before.AssignedTo, newAssignees) {
		s.recalcs.Queue(ctx, userID, domain.RecalcTaskReassignment, t.ID, actor)
	}
	return success(c.Warnings...)
}

// Delete soft-deletes a task, archiving the pre-delete body. Warnings
// from the deletion validator block the operation unless force is set.
func (s *Service) Delete(ctx context.Context, taskID, actor string, force bool) Result {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("delete", err)
	}
	if t.Deleted {
		return failure("task not found")
	}

	c := lifecycle.ValidateDeletion(t)
	if len(c.Warnings) > 0 && !force {
		return failure("deletion has warnings; retry with force to proceed", c.Warnings...)
	}

	before := t
	t.Deleted = true
	t.UpdatedAt = s.now()

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Archive:  &before,
		Audit:    s.audit("task", t.ID, "delete", actor, before, t),
		Activity: s.activity(t.ID, actor, "task deleted"),
	})
	if err != nil {
		return s.storeFailure("delete", err)
	}

	if before.Status == domain.StatusCompleted {
		for _, userID := range t.AssignedTo {
			s.recalcs.Queue(ctx, userID, domain.RecalcTaskDeletion, t.ID, actor)
		}
	}
	return success(c.Warnings...)
}

// Verify records the review outcome on a completed task. The quality
// component reads the outcome, so every assignee gets a recalculation.
func (s *Service) Verify(ctx context.Context, taskID string, outcome domain.VerificationStatus, actor string) Result {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("verify", err)
	}

	c := lifecycle.ValidateVerification(t, outcome)
	if !c.OK {
		return failure(c.Reason)
	}

	before := t
	t.Verification = &outcome
	t.UpdatedAt = s.now()

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Audit:    s.audit("task", t.ID, "verify", actor, before, t),
		Activity: s.activity(t.ID, actor, fmt.Sprintf("verification recorded: %s", outcome)),
	})
	if err != nil {
		return s.storeFailure("verify", err)
	}

	for _, userID := range t.AssignedTo {
		s.recalcs.Queue(ctx, userID, domain.RecalcTaskUpdate, t.ID, actor)
	}
	return success()
}

// ChangePriority updates a task's priority. It always enqueues a
// recalculation: the base formula ignores priority, but richer weight
// configurations may not, and the hook costs one queue row.
func (s *Service) ChangePriority(ctx context.Context, taskID string, newPriority domain.Priority, reason, actor string) Result {
	if !domain.ValidPriority(newPriority) {
		return failure(fmt.Sprintf("unknown priority %q", newPriority))
	}
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("change_priority", err)
	}

	c := lifecycle.ValidatePriorityChange(t, newPriority, reason)

	before := t
	t.Priority = newPriority
	t.UpdatedAt = s.now()

	err = s.store.Apply(ctx, domain.Write{
		Task:     &t,
		Audit:    s.audit("task", t.ID, "priority_change", actor, before, t),
		Activity: s.activity(t.ID, actor, fmt.Sprintf("priority changed from %s to %s", before.Priority, t.Priority)),
	})
	if err != nil {
		return s.storeFailure("change_priority", err)
	}

	for _, userID := range t.AssignedTo {
		s.recalcs.Queue(ctx, userID, domain.RecalcPriorityChange, t.ID, actor)
	}
	return success(c.Warnings...)
}
