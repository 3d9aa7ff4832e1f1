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

type ExtensionInput struct {
	TaskID           string
	RequestedBy      string
	Reason           string
	RequestedDueDate time.Time
}

type ExtensionResult struct {
	Result
	ExtensionID string `json:"extension_id,omitempty"`
}

// RequestExtension opens a pending request to move a task's due date.
func (s *Service) RequestExtension(ctx context.Context, in ExtensionInput) ExtensionResult {
	t, err := s.store.GetTask(ctx, in.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ExtensionResult{Result: failure("task not found")}
		}
		return ExtensionResult{Result: s.storeFailure("request_extension", err)}
	}

	c := lifecycle.ValidateExtensionRequest(t, in.RequestedDueDate, in.Reason)
	if !c.OK {
		return ExtensionResult{Result: failure(c.Reason)}
	}

	e := domain.TaskExtension{
		ID:               "ext_" + uuid.NewString(),
		TaskID:           t.ID,
		RequestedBy:      in.RequestedBy,
		Reason:           in.Reason,
		CurrentDueDate:   *t.EffectiveDue(),
		RequestedDueDate: in.RequestedDueDate,
		Status:           domain.ExtensionPending,
		CreatedAt:        s.now(),
	}

	err = s.store.Apply(ctx, domain.Write{
		Extension: &e,
		Audit:     s.audit("task_extension", e.ID, "create", in.RequestedBy, t, t),
		Activity: s.activity(t.ID, in.RequestedBy,
			fmt.Sprintf("extension requested: due %s -> %s", e.CurrentDueDate.Format("2006-01-02"), e.RequestedDueDate.Format("2006-01-02"))),
	})
	if err != nil {
		return ExtensionResult{Result: s.storeFailure("request_extension", err)}
	}
	return ExtensionResult{Result: success(), ExtensionID: e.ID}
}

// ProcessExtension approves or rejects a pending extension. Approval
// sets the task's final target date, and an overdue task returns to
// in_progress in the same atomic write.
func (s *Service) ProcessExtension(ctx context.Context, extensionID string, approve bool, approver string) Result {
	e, err := s.store.GetExtension(ctx, extensionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("extension not found")
		}
		return s.storeFailure("process_extension", err)
	}
	if e.Status != domain.ExtensionPending {
		return failure(fmt.Sprintf("extension already %s", e.Status))
	}

	t, err := s.store.GetTask(ctx, e.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure("task not found")
		}
		return s.storeFailure("process_extension", err)
	}

	now := s.now()
	e.ProcessedBy = approver
	e.ProcessedAt = &now

	if !approve {
		e.Status = domain.ExtensionRejected
		err = s.store.Apply(ctx, domain.Write{
			Extension: &e,
			Audit:     s.audit("task_extension", e.ID, "reject", approver, t, t),
			Activity:  s.activity(t.ID, approver, "extension request rejected"),
		})
		if err != nil {
			return s.storeFailure("process_extension", err)
		}
		return success()
	}

	e.Status = domain.ExtensionApproved
	before := t
	t.FinalTargetDate = &e.RequestedDueDate
	if t.Status == domain.StatusOverdue {
		t.Status = domain.StatusInProgress
		t.OverdueResumptionReason = "approved extension " + e.ID
		t.OverdueResumedAt = &now
		t.OverdueResumedBy = approver
	}
	t.UpdatedAt = now

	err = s.store.Apply(ctx, domain.Write{
		Task:      &t,
		Extension: &e,
		Audit:     s.audit("task_extension", e.ID, "approve", approver, before, t),
		Activity: s.activity(t.ID, approver,
			fmt.Sprintf("extension approved: new target date %s", e.RequestedDueDate.Format("2006-01-02"))),
	})
	if err != nil {
		return s.storeFailure("process_extension", err)
	}
	return success()
}
