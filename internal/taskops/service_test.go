package taskops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskpulse/internal/domain"
)

// fakeStore keeps documents in memory and applies Writes with the same
// all-or-nothing semantics as a transaction.
type fakeStore struct {
	tasks      map[string]domain.Task
	extensions map[string]domain.TaskExtension
	archive    map[string]domain.Task
	audits     []domain.AuditEntry
	activities []domain.ActivityEntry
	counter    int64

	applyCalls int
	failApply  func(call int) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[string]domain.Task{},
		extensions: map[string]domain.TaskExtension{},
		archive:    map[string]domain.Task{},
	}
}

func (f *fakeStore) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (f *fakeStore) GetExtension(_ context.Context, id string) (domain.TaskExtension, error) {
	e, ok := f.extensions[id]
	if !ok {
		return domain.TaskExtension{}, fmt.Errorf("extension %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func (f *fakeStore) ActiveTasks(_ context.Context) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range f.tasks {
		if !t.Deleted && !t.Status.IsClosed() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) NextNumber(_ context.Context, _ string) (int64, error) {
	f.counter++
	return f.counter, nil
}

func (f *fakeStore) Apply(_ context.Context, writes ...domain.Write) error {
	f.applyCalls++
	if f.failApply != nil {
		if err := f.failApply(f.applyCalls); err != nil {
			return err
		}
	}
	for _, w := range writes {
		if w.Task != nil {
			f.tasks[w.Task.ID] = *w.Task
		}
		if w.Extension != nil {
			f.extensions[w.Extension.ID] = *w.Extension
		}
		if w.Archive != nil {
			f.archive[w.Archive.ID] = *w.Archive
		}
		if w.Audit != nil {
			f.audits = append(f.audits, *w.Audit)
		}
		if w.Activity != nil {
			f.activities = append(f.activities, *w.Activity)
		}
	}
	return nil
}

type fakeDirectory struct {
	users map[string]bool
	err   error
}

func (f *fakeDirectory) UserExists(_ context.Context, id string) (bool, error) {
	return f.users[id], f.err
}

type recalcCall struct {
	UserID string
	Reason domain.RecalcReason
	TaskID string
}

type fakeRecalcs struct{ calls []recalcCall }

func (f *fakeRecalcs) Queue(_ context.Context, userID string, reason domain.RecalcReason, taskID, _ string) {
	f.calls = append(f.calls, recalcCall{UserID: userID, Reason: reason, TaskID: taskID})
}

func tm(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tp(s string) *time.Time {
	t := tm(s)
	return &t
}

func newTestService(fs *fakeStore, dir *fakeDirectory, rq *fakeRecalcs) *Service {
	svc := NewService(fs, dir, rq, zerolog.Nop(), 0)
	svc.now = func() time.Time { return tm("2024-03-20T12:00:00Z") }
	return svc
}

func seedTask(fs *fakeStore, t domain.Task) domain.Task {
	if t.ID == "" {
		t.ID = fmt.Sprintf("tsk_%d", len(fs.tasks)+1)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tm("2024-03-01T00:00:00Z")
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	fs.tasks[t.ID] = t
	return t
}

func TestCreate(t *testing.T) {
	fs := newFakeStore()
	dir := &fakeDirectory{users: map[string]bool{"u1": true}}
	svc := newTestService(fs, dir, &fakeRecalcs{})

	res := svc.Create(context.Background(), CreateInput{Title: "write report", AssignedTo: []string{"u1"}, Actor: "u9"})
	if !res.Success {
		t.Fatalf("create failed: %+v", res)
	}
	if res.Number != 1 {
		t.Fatalf("first task number: want 1, got %d", res.Number)
	}
	created := fs.tasks[res.TaskID]
	if created.Status != domain.StatusAssigned {
		t.Fatalf("task with assignees must start assigned, got %s", created.Status)
	}
	if created.Priority != domain.PriorityMedium {
		t.Fatalf("default priority: want medium, got %s", created.Priority)
	}
	if len(fs.audits) != 1 || len(fs.activities) != 1 {
		t.Fatalf("create must write audit and activity entries: %d/%d", len(fs.audits), len(fs.activities))
	}

	res = svc.Create(context.Background(), CreateInput{Title: "second", Actor: "u9"})
	if res.Number != 2 {
		t.Fatalf("second task number: want 2, got %d", res.Number)
	}
	if fs.tasks[res.TaskID].Status != domain.StatusNotStarted {
		t.Fatal("unassigned task must start not_started")
	}

	res = svc.Create(context.Background(), CreateInput{Title: "bad", AssignedTo: []string{"ghost"}, Actor: "u9"})
	if res.Success || !strings.Contains(res.Error, "does not exist") {
		t.Fatalf("unknown assignee must fail: %+v", res)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeDirectory{}, &fakeRecalcs{})
	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{TaskID: "tsk_missing", To: domain.StatusInProgress})
	if res.Success || res.Error != "task not found" {
		t.Fatalf("want not-found failure, got %+v", res)
	}
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	fs := newFakeStore()
	task := seedTask(fs, domain.Task{Status: domain.StatusCompleted, AssignedTo: []string{"u1"}})
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})

	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{TaskID: task.ID, To: domain.StatusInProgress, Actor: "u1"})
	if res.Success || !strings.Contains(res.Error, "invalid status transition") {
		t.Fatalf("want transition failure, got %+v", res)
	}
	if fs.tasks[task.ID].Status != domain.StatusCompleted {
		t.Fatal("failed transition must not write")
	}
}

func TestUpdateStatus_Complete(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{Status: domain.StatusInProgress, AssignedTo: []string{"u1", "u2"}, Progress: 60})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{TaskID: task.ID, To: domain.StatusCompleted, Actor: "u1"})
	if !res.Success {
		t.Fatalf("completion failed: %+v", res)
	}
	got := fs.tasks[task.ID]
	if got.CompletedAt == nil || !got.CompletedAt.Equal(tm("2024-03-20T12:00:00Z")) {
		t.Fatalf("completedAt must default to now, got %v", got.CompletedAt)
	}
	if got.CompletedBy != "u1" || got.Progress != 100 {
		t.Fatalf("completion fields wrong: %+v", got)
	}
	if len(rq.calls) != 2 || rq.calls[0].Reason != domain.RecalcTaskUpdate {
		t.Fatalf("completion must enqueue recalc per assignee: %+v", rq.calls)
	}
}

func TestUpdateStatus_BackdatedCompletion(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{
		Status:     domain.StatusInProgress,
		AssignedTo: []string{"u1"},
		CreatedAt:  tm("2024-03-01T00:00:00Z"),
	})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	// Backdating into the future fails.
	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TaskID: task.ID, To: domain.StatusCompleted, Actor: "u1",
		CompletedAt: tp("2024-03-25T00:00:00Z"),
	})
	if res.Success {
		t.Fatal("future completion date must fail")
	}

	// A deep backdate succeeds with a warning and its own recalc reason.
	res = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TaskID: task.ID, To: domain.StatusCompleted, Actor: "u1",
		CompletedAt: tp("2024-03-05T00:00:00Z"),
	})
	if !res.Success || len(res.Warnings) != 1 {
		t.Fatalf("want success with backdate warning, got %+v", res)
	}
	if !fs.tasks[task.ID].CompletedAt.Equal(tm("2024-03-05T00:00:00Z")) {
		t.Fatal("explicit completion date must be stored")
	}
	if len(rq.calls) != 1 || rq.calls[0].Reason != domain.RecalcBackdatedCompletion {
		t.Fatalf("backdated completion recalc reason wrong: %+v", rq.calls)
	}
}

func TestUpdateStatus_OverdueResumption(t *testing.T) {
	fs := newFakeStore()
	task := seedTask(fs, domain.Task{Status: domain.StatusOverdue, AssignedTo: []string{"u1"}, DueDate: tp("2024-03-10T00:00:00Z")})
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})

	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{TaskID: task.ID, To: domain.StatusInProgress, Actor: "u1"})
	if res.Success {
		t.Fatal("resumption without reason or extension must fail")
	}

	res = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TaskID: task.ID, To: domain.StatusInProgress, Actor: "u1",
		ResumeReason: "waiting on vendor shipment",
	})
	if !res.Success {
		t.Fatalf("resumption with reason failed: %+v", res)
	}
	got := fs.tasks[task.ID]
	if got.Status != domain.StatusInProgress {
		t.Fatalf("status: want in_progress, got %s", got.Status)
	}
	if got.OverdueResumptionReason != "waiting on vendor shipment" || got.OverdueResumedAt == nil || got.OverdueResumedBy != "u1" {
		t.Fatalf("resumption fields not recorded: %+v", got)
	}
}

func TestUpdateStatus_ResumptionRejectsForeignExtension(t *testing.T) {
	fs := newFakeStore()
	task := seedTask(fs, domain.Task{
		ID:         "tsk_a",
		Status:     domain.StatusOverdue,
		AssignedTo: []string{"u1"},
		DueDate:    tp("2024-03-10T00:00:00Z"),
	})
	fs.extensions["ext_other"] = domain.TaskExtension{
		ID:     "ext_other",
		TaskID: "tsk_b",
		Status: domain.ExtensionApproved,
	}
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})

	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TaskID: task.ID, To: domain.StatusInProgress, Actor: "u1",
		ExtensionID: "ext_other",
	})
	if res.Success || !strings.Contains(res.Error, "different task") {
		t.Fatalf("extension for another task must not authorize resumption: %+v", res)
	}
	got := fs.tasks[task.ID]
	if got.Status != domain.StatusOverdue || got.OverdueResumptionReason != "" {
		t.Fatalf("refused resumption must not write: %+v", got)
	}
}

func TestUpdateStatus_RevisionRequestEnqueuesRecalc(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{
		Status:      domain.StatusCompleted,
		AssignedTo:  []string{"u1", "u2"},
		CompletedAt: tp("2024-03-15T00:00:00Z"),
	})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	res := svc.UpdateStatus(context.Background(), UpdateStatusInput{TaskID: task.ID, To: domain.StatusRevisionRequested, Actor: "u9"})
	if !res.Success {
		t.Fatalf("revision request failed: %+v", res)
	}
	got := fs.tasks[task.ID]
	if got.Status != domain.StatusRevisionRequested || got.CompletedAt == nil {
		t.Fatalf("revision must keep the completion timestamp: %+v", got)
	}
	// The task still counts as completed work but its quality points
	// change, so the stored score goes stale without a recalc.
	if len(rq.calls) != 2 {
		t.Fatalf("want recalc per assignee, got %+v", rq.calls)
	}
	for _, c := range rq.calls {
		if c.Reason != domain.RecalcTaskUpdate {
			t.Fatalf("wrong recalc reason: %+v", c)
		}
	}
}

func TestReassign(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	dir := &fakeDirectory{users: map[string]bool{"u2": true, "u3": true}}
	task := seedTask(fs, domain.Task{Status: domain.StatusAssigned, AssignedTo: []string{"u1"}})
	svc := newTestService(fs, dir, rq)

	res := svc.Reassign(context.Background(), task.ID, []string{"ghost"}, "u9")
	if res.Success || !strings.Contains(res.Error, "does not exist") {
		t.Fatalf("unknown assignee must fail: %+v", res)
	}
	if len(fs.tasks[task.ID].AssignedTo) != 1 {
		t.Fatal("failed reassignment must not write")
	}

	res = svc.Reassign(context.Background(), task.ID, []string{"u2", "u3", "u2"}, "u9")
	if !res.Success {
		t.Fatalf("reassignment failed: %+v", res)
	}
	got := fs.tasks[task.ID].AssignedTo
	if len(got) != 2 {
		t.Fatalf("assignees must be deduplicated: %v", got)
	}
	// Recalc for the union of old and new assignees.
	if len(rq.calls) != 3 {
		t.Fatalf("want recalc for u1, u2, u3; got %+v", rq.calls)
	}
	for _, c := range rq.calls {
		if c.Reason != domain.RecalcTaskReassignment {
			t.Fatalf("wrong recalc reason: %+v", c)
		}
	}
}

func TestDelete_RequiresForceOnWarnings(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{
		Status:     domain.StatusCompleted,
		AssignedTo: []string{"u1"},
		KRAID:      "kra_7",
	})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	res := svc.Delete(context.Background(), task.ID, "u9", false)
	if res.Success {
		t.Fatal("delete with warnings and no force must fail")
	}
	if !strings.Contains(res.Error, "force") {
		t.Fatalf("error must mention force: %q", res.Error)
	}
	if len(res.Warnings) < 2 {
		t.Fatalf("want completed-task and KRA warnings, got %+v", res.Warnings)
	}
	if fs.tasks[task.ID].Deleted {
		t.Fatal("refused delete must not write")
	}

	res = svc.Delete(context.Background(), task.ID, "u9", true)
	if !res.Success {
		t.Fatalf("forced delete failed: %+v", res)
	}
	if !fs.tasks[task.ID].Deleted {
		t.Fatal("task must be soft-deleted")
	}
	archived, ok := fs.archive[task.ID]
	if !ok || archived.Deleted {
		t.Fatalf("pre-delete body must be archived verbatim: %+v", archived)
	}
	if len(rq.calls) != 1 || rq.calls[0].Reason != domain.RecalcTaskDeletion {
		t.Fatalf("deleting a completed task must enqueue recalc: %+v", rq.calls)
	}
}

func TestDelete_PlainTaskNeedsNoForce(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{Status: domain.StatusInProgress, AssignedTo: []string{"u1"}})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	res := svc.Delete(context.Background(), task.ID, "u9", false)
	if !res.Success {
		t.Fatalf("warning-free delete must not need force: %+v", res)
	}
	if len(rq.calls) != 0 {
		t.Fatal("deleting a non-completed task must not enqueue recalc")
	}
}

func TestChangePriority(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{Status: domain.StatusInProgress, AssignedTo: []string{"u1"}, Priority: domain.PriorityMedium})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	res := svc.ChangePriority(context.Background(), task.ID, domain.PriorityCritical, "", "u9")
	if !res.Success || len(res.Warnings) != 1 {
		t.Fatalf("unexplained escalation: want success with warning, got %+v", res)
	}
	if fs.tasks[task.ID].Priority != domain.PriorityCritical {
		t.Fatal("priority not written")
	}
	if len(rq.calls) != 1 || rq.calls[0].Reason != domain.RecalcPriorityChange {
		t.Fatalf("priority change must always enqueue recalc: %+v", rq.calls)
	}

	if res := svc.ChangePriority(context.Background(), task.ID, "urgent", "", "u9"); res.Success {
		t.Fatal("unknown priority must fail")
	}
}

func TestVerify(t *testing.T) {
	fs := newFakeStore()
	rq := &fakeRecalcs{}
	task := seedTask(fs, domain.Task{
		Status:      domain.StatusCompleted,
		AssignedTo:  []string{"u1"},
		CompletedAt: tp("2024-03-15T00:00:00Z"),
	})
	open := seedTask(fs, domain.Task{ID: "tsk_open", Status: domain.StatusInProgress, AssignedTo: []string{"u1"}})
	svc := newTestService(fs, &fakeDirectory{}, rq)

	if res := svc.Verify(context.Background(), open.ID, domain.VerificationVerified, "u9"); res.Success {
		t.Fatal("verifying an incomplete task must fail")
	}
	if res := svc.Verify(context.Background(), task.ID, "maybe", "u9"); res.Success {
		t.Fatal("unknown outcome must fail")
	}

	res := svc.Verify(context.Background(), task.ID, domain.VerificationVerified, "u9")
	if !res.Success {
		t.Fatalf("verify failed: %+v", res)
	}
	got := fs.tasks[task.ID]
	if got.Verification == nil || *got.Verification != domain.VerificationVerified {
		t.Fatalf("verification not recorded: %+v", got)
	}
	if len(rq.calls) != 1 || rq.calls[0].Reason != domain.RecalcTaskUpdate {
		t.Fatalf("verification must enqueue recalc: %+v", rq.calls)
	}

	// Verdicts are final.
	if res := svc.Verify(context.Background(), task.ID, domain.VerificationRejected, "u9"); res.Success {
		t.Fatal("re-verifying must fail")
	}
}

func TestRequestAndProcessExtension(t *testing.T) {
	fs := newFakeStore()
	task := seedTask(fs, domain.Task{
		Status:     domain.StatusOverdue,
		AssignedTo: []string{"u1"},
		DueDate:    tp("2024-03-10T00:00:00Z"),
	})
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})

	res := svc.RequestExtension(context.Background(), ExtensionInput{
		TaskID: task.ID, RequestedBy: "u1",
		Reason:           "too short",
		RequestedDueDate: tm("2024-03-28T00:00:00Z"),
	})
	if res.Success {
		t.Fatal("short reason must fail")
	}

	res = svc.RequestExtension(context.Background(), ExtensionInput{
		TaskID: task.ID, RequestedBy: "u1",
		Reason:           "vendor delayed the hardware delivery by two weeks",
		RequestedDueDate: tm("2024-03-28T00:00:00Z"),
	})
	if !res.Success || res.ExtensionID == "" {
		t.Fatalf("extension request failed: %+v", res)
	}
	if fs.extensions[res.ExtensionID].Status != domain.ExtensionPending {
		t.Fatal("new extension must be pending")
	}

	// Approval sets the final target date and resumes the overdue task in
	// the same write.
	pres := svc.ProcessExtension(context.Background(), res.ExtensionID, true, "u9")
	if !pres.Success {
		t.Fatalf("approval failed: %+v", pres)
	}
	got := fs.tasks[task.ID]
	if got.FinalTargetDate == nil || !got.FinalTargetDate.Equal(tm("2024-03-28T00:00:00Z")) {
		t.Fatalf("final target date not set: %+v", got.FinalTargetDate)
	}
	if got.Status != domain.StatusInProgress {
		t.Fatalf("overdue task must resume on approval, got %s", got.Status)
	}
	if fs.extensions[res.ExtensionID].Status != domain.ExtensionApproved {
		t.Fatal("extension must be approved")
	}

	// Extensions transition exactly once.
	if pres := svc.ProcessExtension(context.Background(), res.ExtensionID, false, "u9"); pres.Success {
		t.Fatal("processing an already-approved extension must fail")
	}
}

func TestProcessExtension_Reject(t *testing.T) {
	fs := newFakeStore()
	task := seedTask(fs, domain.Task{
		Status:     domain.StatusInProgress,
		AssignedTo: []string{"u1"},
		DueDate:    tp("2024-03-25T00:00:00Z"),
	})
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})

	res := svc.RequestExtension(context.Background(), ExtensionInput{
		TaskID: task.ID, RequestedBy: "u1",
		Reason:           "scope grew after the design review meeting",
		RequestedDueDate: tm("2024-04-05T00:00:00Z"),
	})
	if !res.Success {
		t.Fatalf("request failed: %+v", res)
	}

	if pres := svc.ProcessExtension(context.Background(), res.ExtensionID, false, "u9"); !pres.Success {
		t.Fatalf("rejection failed: %+v", pres)
	}
	if fs.extensions[res.ExtensionID].Status != domain.ExtensionRejected {
		t.Fatal("extension must be rejected")
	}
	if fs.tasks[task.ID].FinalTargetDate != nil {
		t.Fatal("rejection must not touch the task's dates")
	}
}

func TestMarkOverdueTasks(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{}) // now = 2024-03-20

	pastDue := tp("2024-03-10T00:00:00Z")
	futureDue := tp("2024-03-25T00:00:00Z")
	seedTask(fs, domain.Task{ID: "tsk_late", Status: domain.StatusInProgress, AssignedTo: []string{"u1"}, DueDate: pastDue})
	seedTask(fs, domain.Task{ID: "tsk_ontrack", Status: domain.StatusInProgress, AssignedTo: []string{"u1"}, DueDate: futureDue})
	seedTask(fs, domain.Task{ID: "tsk_done", Status: domain.StatusCompleted, AssignedTo: []string{"u1"}, DueDate: pastDue})
	seedTask(fs, domain.Task{ID: "tsk_already", Status: domain.StatusOverdue, AssignedTo: []string{"u1"}, DueDate: pastDue})
	seedTask(fs, domain.Task{ID: "tsk_extended", Status: domain.StatusInProgress, AssignedTo: []string{"u1"}, DueDate: pastDue, FinalTargetDate: futureDue})

	res := svc.MarkOverdueTasks(context.Background())
	if !res.Success || res.Marked != 1 {
		t.Fatalf("want exactly tsk_late marked, got %+v", res)
	}
	if fs.tasks["tsk_late"].Status != domain.StatusOverdue {
		t.Fatal("late task not marked overdue")
	}
	for _, id := range []string{"tsk_ontrack", "tsk_done", "tsk_extended"} {
		if fs.tasks[id].Status == domain.StatusOverdue {
			t.Fatalf("%s must not be marked", id)
		}
	}

	// Second run is a no-op thanks to the status guard.
	res = svc.MarkOverdueTasks(context.Background())
	if res.Marked != 0 {
		t.Fatalf("second sweep must mark nothing, got %+v", res)
	}
}

func TestMarkOverdueTasks_ChunksCommitIndependently(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeDirectory{}, &fakeRecalcs{})
	svc.maxBatchOps = 4 // two tasks per chunk (task row + activity row each)

	pastDue := tp("2024-03-10T00:00:00Z")
	for i := 0; i < 5; i++ {
		seedTask(fs, domain.Task{
			ID:         fmt.Sprintf("tsk_%d", i),
			Status:     domain.StatusInProgress,
			AssignedTo: []string{"u1"},
			DueDate:    pastDue,
		})
	}
	// First chunk commit fails; the remaining chunks still land.
	fs.failApply = func(call int) error {
		if call == 1 {
			return errors.New("transient store failure")
		}
		return nil
	}

	res := svc.MarkOverdueTasks(context.Background())
	if res.Marked != 3 {
		t.Fatalf("want 3 marked from surviving chunks, got %+v", res)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("want 2 per-task errors from the failed chunk, got %+v", res.Errors)
	}
	if fs.applyCalls != 3 {
		t.Fatalf("5 tasks at 2 per chunk must take 3 commits, got %d", fs.applyCalls)
	}
}
