// Package taskops orchestrates task mutations: fetch, validate through
// the lifecycle package, commit one atomic write (task + audit +
// activity), then enqueue score recalculation best-effort.
package taskops

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"taskpulse/internal/domain"
)

// DefaultMaxBatchOps bounds row writes per transaction during the
// overdue sweep, a safety margin under typical store batch ceilings.
const DefaultMaxBatchOps = 400

// Store is the persistence the orchestrator needs.
type Store interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	GetExtension(ctx context.Context, id string) (domain.TaskExtension, error)
	ActiveTasks(ctx context.Context) ([]domain.Task, error)
	NextNumber(ctx context.Context, name string) (int64, error)
	Apply(ctx context.Context, writes ...domain.Write) error
}

// Directory resolves user identifiers.
type Directory interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Recalcs accepts best-effort score recalculation requests. Failures are
// the implementation's problem (logged there), never the caller's.
type Recalcs interface {
	Queue(ctx context.Context, userID string, reason domain.RecalcReason, taskID, triggeredBy string)
}

type Service struct {
	store       Store
	users       Directory
	recalcs     Recalcs
	log         zerolog.Logger
	now         func() time.Time
	maxBatchOps int
}

// NewService wires the orchestrator. maxBatchOps <= 0 selects
// DefaultMaxBatchOps.
func NewService(store Store, users Directory, recalcs Recalcs, log zerolog.Logger, maxBatchOps int) *Service {
	if maxBatchOps <= 0 {
		maxBatchOps = DefaultMaxBatchOps
	}
	return &Service{
		store:       store,
		users:       users,
		recalcs:     recalcs,
		log:         log,
		now:         time.Now,
		maxBatchOps: maxBatchOps,
	}
}

// Result is the outcome of one orchestrator operation. Business-rule
// violations and collaborator failures both surface here; nothing in
// this package panics or returns raw errors to callers.
type Result struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func failure(msg string, warnings ...string) Result {
	return Result{Error: msg, Warnings: warnings}
}

func success(warnings ...string) Result {
	return Result{Success: true, Warnings: warnings}
}

// storeFailure reports a collaborator failure without exposing the
// underlying cause to the caller.
func (s *Service) storeFailure(op string, err error) Result {
	s.log.Error().Err(err).Str("op", op).Msg("store operation failed")
	return failure("storage unavailable, try again later")
}

// snapshotFields captures the audited slice of a task document.
func snapshotFields(t domain.Task) map[string]any {
	return map[string]any{
		"status":            t.Status,
		"priority":          t.Priority,
		"assigned_to":       t.AssignedTo,
		"progress":          t.Progress,
		"due_date":          t.DueDate,
		"final_target_date": t.FinalTargetDate,
		"completed_at":      t.CompletedAt,
		"verification":      t.Verification,
		"deleted":           t.Deleted,
	}
}

func (s *Service) audit(entityType, entityID, operation, actor string, before, after domain.Task) *domain.AuditEntry {
	return &domain.AuditEntry{
		EntityType:    entityType,
		EntityID:      entityID,
		Operation:     operation,
		UserID:        actor,
		Timestamp:     s.now(),
		Changes:       snapshotFields(after),
		PreviousState: snapshotFields(before),
	}
}

func (s *Service) activity(taskID, actor, detail string) *domain.ActivityEntry {
	return &domain.ActivityEntry{
		TaskID:    taskID,
		Actor:     actor,
		Detail:    detail,
		Timestamp: s.now(),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func union(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}
