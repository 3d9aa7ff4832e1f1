package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
)

// Batch collects row mutations that must land together. Commit applies
// them in one transaction, so a logical operation (task update + audit
// entry + activity entry) is never partially visible.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	query string
	args  []any
}

func (b *Batch) add(query string, args ...any) {
	b.ops = append(b.ops, batchOp{query: query, args: args})
}

// Len is the number of row writes the batch carries, used by callers
// that chunk work under a per-transaction write limit.
func (b *Batch) Len() int { return len(b.ops) }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// SaveTask writes the full task row, inserting or replacing by id.
func (b *Batch) SaveTask(t domain.Task) error {
	assigned, err := json.Marshal(t.AssignedTo)
	if err != nil {
		return fmt.Errorf("encode assignees: %w", err)
	}
	if t.AssignedTo == nil {
		assigned = []byte("[]")
	}
	var verification sql.NullString
	if t.Verification != nil {
		verification = sql.NullString{String: string(*t.Verification), Valid: true}
	}
	b.add(`
INSERT OR REPLACE INTO tasks (id,number,title,description,status,priority,assigned_to,progress,
  due_date,final_target_date,completed_at,completed_by,verification,kra_id,
  overdue_resumption_reason,overdue_resumed_at,overdue_resumed_by,deleted,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Number, t.Title, t.Description, t.Status, t.Priority, string(assigned), t.Progress,
		nullTime(t.DueDate), nullTime(t.FinalTargetDate), nullTime(t.CompletedAt), t.CompletedBy, verification, t.KRAID,
		t.OverdueResumptionReason, nullTime(t.OverdueResumedAt), t.OverdueResumedBy, t.Deleted, t.CreatedAt, t.UpdatedAt)
	return nil
}

// SaveExtension writes the full extension row, inserting or replacing by id.
func (b *Batch) SaveExtension(e domain.TaskExtension) {
	b.add(`
INSERT OR REPLACE INTO task_extensions (id,task_id,requested_by,reason,current_due_date,requested_due_date,status,processed_by,processed_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.RequestedBy, e.Reason, e.CurrentDueDate, e.RequestedDueDate, e.Status, e.ProcessedBy, nullTime(e.ProcessedAt), e.CreatedAt)
}

// AppendAudit adds an append-only audit record.
func (b *Batch) AppendAudit(a domain.AuditEntry) error {
	changes, err := json.Marshal(a.Changes)
	if err != nil {
		return fmt.Errorf("encode audit changes: %w", err)
	}
	previous, err := json.Marshal(a.PreviousState)
	if err != nil {
		return fmt.Errorf("encode audit previous state: %w", err)
	}
	id := a.ID
	if id == "" {
		id = "aud_" + uuid.NewString()
	}
	b.add(`
INSERT INTO audit_log (id,entity_type,entity_id,operation,user_id,timestamp,changes,previous_state)
VALUES (?,?,?,?,?,?,?,?)`,
		id, a.EntityType, a.EntityID, a.Operation, a.UserID, a.Timestamp, string(changes), string(previous))
	return nil
}

// AppendActivity adds a human-readable per-task log line.
func (b *Batch) AppendActivity(a domain.ActivityEntry) {
	id := a.ID
	if id == "" {
		id = "act_" + uuid.NewString()
	}
	b.add(`
INSERT INTO activity_log (id,task_id,actor,detail,timestamp)
VALUES (?,?,?,?,?)`, id, a.TaskID, a.Actor, a.Detail, a.Timestamp)
}

// ArchiveTask stores the pre-delete task body verbatim for recovery.
func (b *Batch) ArchiveTask(t domain.Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode archived task: %w", err)
	}
	b.add(`
INSERT OR REPLACE INTO task_archive (task_id,body,archived_at)
VALUES (?,?,CURRENT_TIMESTAMP)`, t.ID, string(body))
	return nil
}

// Commit applies the batch atomically.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b == nil || len(b.ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, op := range b.ops {
		if _, err := tx.ExecContext(ctx, op.query, op.args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
