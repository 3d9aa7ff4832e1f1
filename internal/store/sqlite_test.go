package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"taskpulse/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return New(db)
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

func TestTaskRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task := domain.Task{
		ID:         "tsk_1",
		Number:     7,
		Title:      "quarterly report",
		Status:     domain.StatusInProgress,
		Priority:   domain.PriorityHigh,
		AssignedTo: []string{"u1", "u2"},
		Progress:   40,
		DueDate:    tp("2024-04-01T00:00:00Z"),
		KRAID:      "kra_3",
		CreatedAt:  tm("2024-03-01T10:00:00Z"),
		UpdatedAt:  tm("2024-03-02T10:00:00Z"),
	}
	err := s.Apply(ctx, domain.Write{
		Task:     &task,
		Audit:    &domain.AuditEntry{EntityType: "task", EntityID: task.ID, Operation: "create", UserID: "u9", Timestamp: tm("2024-03-01T10:00:00Z")},
		Activity: &domain.ActivityEntry{TaskID: task.ID, Actor: "u9", Detail: "task created", Timestamp: tm("2024-03-01T10:00:00Z")},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := s.GetTask(ctx, "tsk_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != task.Title || got.Number != 7 || got.Status != domain.StatusInProgress {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.AssignedTo) != 2 || got.AssignedTo[0] != "u1" {
		t.Fatalf("assignees mismatch: %v", got.AssignedTo)
	}
	if got.DueDate == nil || !got.DueDate.Equal(*task.DueDate) {
		t.Fatalf("due date mismatch: %v", got.DueDate)
	}
	if got.FinalTargetDate != nil || got.CompletedAt != nil || got.Verification != nil {
		t.Fatalf("unset optionals must come back nil: %+v", got)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTask(context.Background(), "tsk_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTasksForUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := func(id string, assignees []string, deleted bool) {
		task := domain.Task{
			ID: id, Title: id, Status: domain.StatusAssigned, Priority: domain.PriorityMedium,
			AssignedTo: assignees, Deleted: deleted,
			CreatedAt: tm("2024-03-01T00:00:00Z"), UpdatedAt: tm("2024-03-01T00:00:00Z"),
		}
		if err := s.Apply(ctx, domain.Write{Task: &task}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("tsk_1", []string{"u1"}, false)
	seed("tsk_2", []string{"u1", "u2"}, false)
	seed("tsk_3", []string{"u2"}, false)
	seed("tsk_4", []string{"u1"}, true) // deleted, excluded

	tasks, err := s.TasksForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("want 2 tasks for u1, got %d", len(tasks))
	}
}

func TestNextNumber(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextNumber(ctx, "tasks")
		if err != nil {
			t.Fatalf("next number: %v", err)
		}
		if got != want {
			t.Fatalf("want %d, got %d", want, got)
		}
	}
	// Independent counters do not interfere.
	if got, err := s.NextNumber(ctx, "kras"); err != nil || got != 1 {
		t.Fatalf("fresh counter: want 1, got %d (%v)", got, err)
	}
}

func TestUpsertSnapshot_Versioning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := domain.ScoreResult{
		UserID:       "u1",
		PeriodStart:  tm("2024-03-18T00:00:00Z"),
		PeriodEnd:    tm("2024-03-25T00:00:00Z"),
		OverallScore: 70,
		TaskCount:    4,
	}
	snap, err := s.UpsertSnapshot(ctx, r)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if snap.Version != 1 {
		t.Fatalf("first write: want version 1, got %d", snap.Version)
	}
	firstID := snap.ID

	r.OverallScore = 75
	snap, err = s.UpsertSnapshot(ctx, r)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if snap.Version != 2 || snap.OverallScore != 75 {
		t.Fatalf("rewrite: want version 2 with latest values, got %+v", snap)
	}
	if snap.ID != firstID {
		t.Fatal("rewrite must keep the original snapshot row")
	}
}

func TestRecalcQueue_FIFO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, u := range []string{"u1", "u2", "u3"} {
		err := s.EnqueueRecalc(ctx, domain.ScoreRecalcRequest{
			UserID:    u,
			Reason:    domain.RecalcTaskUpdate,
			CreatedAt: tm("2024-03-20T10:00:00Z").Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", u, err)
		}
	}

	reqs, err := s.PendingRecalcs(ctx, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(reqs) != 2 || reqs[0].UserID != "u1" || reqs[1].UserID != "u2" {
		t.Fatalf("want oldest two (u1,u2), got %+v", reqs)
	}

	if err := s.DeleteRecalc(ctx, reqs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	reqs, err = s.PendingRecalcs(ctx, 10)
	if err != nil {
		t.Fatalf("pending after delete: %v", err)
	}
	if len(reqs) != 2 || reqs[0].UserID != "u2" {
		t.Fatalf("want u2 at head after dequeue, got %+v", reqs)
	}
}

func TestScoreWeights(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, stored, err := s.ScoreWeights(ctx); err != nil || stored {
		t.Fatalf("fresh store must report no stored weights (stored=%v, err=%v)", stored, err)
	}

	want := domain.ScoreWeights{Completion: 35, Timeliness: 25, Quality: 25, KRAAlignment: 15}
	if err := s.SetScoreWeights(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, stored, err := s.ScoreWeights(ctx)
	if err != nil || !stored {
		t.Fatalf("load: stored=%v err=%v", stored, err)
	}
	if got != want {
		t.Fatalf("want %+v, got %+v", want, got)
	}

	// Overwriting keeps a single config row.
	want.Completion = 40
	if err := s.SetScoreWeights(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _, _ := s.ScoreWeights(ctx); got.Completion != 40 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestUserExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if ok, err := s.UserExists(ctx, "u1"); err != nil || ok {
		t.Fatalf("unknown user: want false, got %v (%v)", ok, err)
	}
	if err := s.CreateUser(ctx, "u1", "Dana"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if ok, err := s.UserExists(ctx, "u1"); err != nil || !ok {
		t.Fatalf("known user: want true, got %v (%v)", ok, err)
	}
}
