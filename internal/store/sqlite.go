// Package store is the persistence collaborator: SQLite-backed documents
// with get/query reads, atomic multi-row batch writes, and a
// transactional counter for sequential task numbers.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  number INTEGER NOT NULL DEFAULT 0,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK(status IN ('not_started','assigned','in_progress','blocked','completed','cancelled','on_hold','pending_review','revision_requested','overdue')),
  priority TEXT NOT NULL CHECK(priority IN ('low','medium','high','critical')) DEFAULT 'medium',
  assigned_to TEXT NOT NULL DEFAULT '[]',
  progress INTEGER NOT NULL DEFAULT 0,
  due_date DATETIME,
  final_target_date DATETIME,
  completed_at DATETIME,
  completed_by TEXT NOT NULL DEFAULT '',
  verification TEXT,
  kra_id TEXT NOT NULL DEFAULT '',
  overdue_resumption_reason TEXT NOT NULL DEFAULT '',
  overdue_resumed_at DATETIME,
  overdue_resumed_by TEXT NOT NULL DEFAULT '',
  deleted INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_open ON tasks(deleted, status);
CREATE TABLE IF NOT EXISTS task_extensions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  requested_by TEXT NOT NULL,
  reason TEXT NOT NULL,
  current_due_date DATETIME NOT NULL,
  requested_due_date DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','approved','rejected')) DEFAULT 'pending',
  processed_by TEXT NOT NULL DEFAULT '',
  processed_at DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_extensions_task ON task_extensions(task_id);
CREATE TABLE IF NOT EXISTS score_snapshots (
  id TEXT PRIMARY KEY,
  key TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  completion_score INTEGER NOT NULL,
  timeliness_score INTEGER NOT NULL,
  quality_score INTEGER NOT NULL,
  kra_alignment_score INTEGER NOT NULL,
  overall_score INTEGER NOT NULL,
  task_count INTEGER NOT NULL,
  completed_count INTEGER NOT NULL,
  on_time_count INTEGER NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_snapshots_user ON score_snapshots(user_id, period_start);
CREATE TABLE IF NOT EXISTS recalc_queue (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  task_id TEXT NOT NULL DEFAULT '',
  triggered_by TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_recalc_created ON recalc_queue(created_at);
CREATE TABLE IF NOT EXISTS audit_log (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  operation TEXT NOT NULL,
  user_id TEXT NOT NULL,
  timestamp DATETIME NOT NULL,
  changes TEXT NOT NULL DEFAULT '{}',
  previous_state TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS activity_log (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  actor TEXT NOT NULL,
  detail TEXT NOT NULL,
  timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_task ON activity_log(task_id);
CREATE TABLE IF NOT EXISTS task_archive (
  task_id TEXT PRIMARY KEY,
  body TEXT NOT NULL,
  archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS counters (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS score_config (
  id INTEGER PRIMARY KEY CHECK(id = 1),
  completion_weight INTEGER NOT NULL,
  timeliness_weight INTEGER NOT NULL,
  quality_weight INTEGER NOT NULL,
  kra_alignment_weight INTEGER NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

const taskColumns = `id,number,title,description,status,priority,assigned_to,progress,
due_date,final_target_date,completed_at,completed_by,verification,kra_id,
overdue_resumption_reason,overdue_resumed_at,overdue_resumed_by,deleted,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var (
		t            domain.Task
		assigned     string
		due, final   sql.NullTime
		completed    sql.NullTime
		verification sql.NullString
		resumedAt    sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Number, &t.Title, &t.Description, &t.Status, &t.Priority, &assigned, &t.Progress,
		&due, &final, &completed, &t.CompletedBy, &verification, &t.KRAID,
		&t.OverdueResumptionReason, &resumedAt, &t.OverdueResumedBy, &t.Deleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	if err := json.Unmarshal([]byte(assigned), &t.AssignedTo); err != nil {
		return domain.Task{}, fmt.Errorf("decode assignees for %s: %w", t.ID, err)
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if final.Valid {
		t.FinalTargetDate = &final.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	if verification.Valid {
		v := domain.VerificationStatus(verification.String)
		t.Verification = &v
	}
	if resumedAt.Valid {
		t.OverdueResumedAt = &resumedAt.Time
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, err
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ActiveTasks returns non-deleted tasks still open for work, the input
// set of the overdue sweep.
func (s *Store) ActiveTasks(ctx context.Context) ([]domain.Task, error) {
	return s.queryTasks(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE deleted=0 AND status NOT IN ('completed','cancelled')
ORDER BY created_at ASC`)
}

// TasksForUser returns non-deleted tasks where the user is an assignee.
func (s *Store) TasksForUser(ctx context.Context, userID string) ([]domain.Task, error) {
	return s.queryTasks(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE deleted=0 AND EXISTS (SELECT 1 FROM json_each(tasks.assigned_to) WHERE json_each.value = ?)
ORDER BY created_at ASC`, userID)
}

// TasksInWindow returns non-deleted tasks whose relevant date (completion,
// else update, else creation) falls in [start, end).
func (s *Store) TasksInWindow(ctx context.Context, start, end time.Time) ([]domain.Task, error) {
	return s.queryTasks(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE deleted=0
  AND COALESCE(completed_at, updated_at, created_at) >= ?
  AND COALESCE(completed_at, updated_at, created_at) < ?
ORDER BY created_at ASC`, start, end)
}

func (s *Store) GetExtension(ctx context.Context, id string) (domain.TaskExtension, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,task_id,requested_by,reason,current_due_date,requested_due_date,status,processed_by,processed_at,created_at
FROM task_extensions WHERE id=?`, id)
	var (
		e         domain.TaskExtension
		processed sql.NullTime
	)
	err := row.Scan(&e.ID, &e.TaskID, &e.RequestedBy, &e.Reason, &e.CurrentDueDate, &e.RequestedDueDate, &e.Status, &e.ProcessedBy, &processed, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskExtension{}, fmt.Errorf("extension %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TaskExtension{}, err
	}
	if processed.Valid {
		e.ProcessedAt = &processed.Time
	}
	return e, nil
}

func (s *Store) UserExists(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=?`, id)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) CreateUser(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id,name) VALUES (?,?)`, id, name)
	return err
}

// ScoreWeights loads the stored weight config. The bool is false when no
// override row exists.
func (s *Store) ScoreWeights(ctx context.Context) (domain.ScoreWeights, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT completion_weight,timeliness_weight,quality_weight,kra_alignment_weight FROM score_config WHERE id=1`)
	var w domain.ScoreWeights
	err := row.Scan(&w.Completion, &w.Timeliness, &w.Quality, &w.KRAAlignment)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScoreWeights{}, false, nil
	}
	if err != nil {
		return domain.ScoreWeights{}, false, err
	}
	return w, true, nil
}

func (s *Store) SetScoreWeights(ctx context.Context, w domain.ScoreWeights) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO score_config (id,completion_weight,timeliness_weight,quality_weight,kra_alignment_weight,updated_at)
VALUES (1,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  completion_weight=excluded.completion_weight,
  timeliness_weight=excluded.timeliness_weight,
  quality_weight=excluded.quality_weight,
  kra_alignment_weight=excluded.kra_alignment_weight,
  updated_at=CURRENT_TIMESTAMP`,
		w.Completion, w.Timeliness, w.Quality, w.KRAAlignment)
	return err
}

// UpsertSnapshot writes a score result under its deterministic key.
// A first write creates version 1; every rewrite of the same key bumps
// the version and overwrites the values (last write wins).
func (s *Store) UpsertSnapshot(ctx context.Context, r domain.ScoreResult) (domain.ScoreSnapshot, error) {
	key := domain.SnapshotKey(r.UserID, r.PeriodStart, r.PeriodEnd)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO score_snapshots (id,key,user_id,period_start,period_end,
  completion_score,timeliness_score,quality_score,kra_alignment_score,overall_score,
  task_count,completed_count,on_time_count,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,1,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET
  completion_score=excluded.completion_score,
  timeliness_score=excluded.timeliness_score,
  quality_score=excluded.quality_score,
  kra_alignment_score=excluded.kra_alignment_score,
  overall_score=excluded.overall_score,
  task_count=excluded.task_count,
  completed_count=excluded.completed_count,
  on_time_count=excluded.on_time_count,
  version=version+1,
  updated_at=CURRENT_TIMESTAMP`,
		"snap_"+uuid.NewString(), key, r.UserID, r.PeriodStart, r.PeriodEnd,
		r.CompletionScore, r.TimelinessScore, r.QualityScore, r.KRAAlignmentScore, r.OverallScore,
		r.TaskCount, r.CompletedCount, r.OnTimeCount)
	if err != nil {
		return domain.ScoreSnapshot{}, err
	}
	return s.GetSnapshot(ctx, key)
}

func (s *Store) GetSnapshot(ctx context.Context, key string) (domain.ScoreSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,key,user_id,period_start,period_end,
  completion_score,timeliness_score,quality_score,kra_alignment_score,overall_score,
  task_count,completed_count,on_time_count,version,created_at,updated_at
FROM score_snapshots WHERE key=?`, key)
	var snap domain.ScoreSnapshot
	err := row.Scan(&snap.ID, &snap.Key, &snap.UserID, &snap.PeriodStart, &snap.PeriodEnd,
		&snap.CompletionScore, &snap.TimelinessScore, &snap.QualityScore, &snap.KRAAlignmentScore, &snap.OverallScore,
		&snap.TaskCount, &snap.CompletedCount, &snap.OnTimeCount, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScoreSnapshot{}, fmt.Errorf("snapshot %s: %w", key, domain.ErrNotFound)
	}
	return snap, err
}

func (s *Store) EnqueueRecalc(ctx context.Context, r domain.ScoreRecalcRequest) error {
	id := r.ID
	if id == "" {
		id = "rcq_" + uuid.NewString()
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO recalc_queue (id,user_id,reason,task_id,triggered_by,created_at)
VALUES (?,?,?,?,?,?)`, id, r.UserID, r.Reason, r.TaskID, r.TriggeredBy, createdAt)
	return err
}

// PendingRecalcs returns up to limit queue entries, oldest first.
func (s *Store) PendingRecalcs(ctx context.Context, limit int) ([]domain.ScoreRecalcRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,user_id,reason,task_id,triggered_by,created_at
FROM recalc_queue ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.ScoreRecalcRequest
	for rows.Next() {
		var r domain.ScoreRecalcRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.Reason, &r.TaskID, &r.TriggeredBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *Store) DeleteRecalc(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recalc_queue WHERE id=?`, id)
	return err
}

// NextNumber increments and returns the named counter in one
// transaction. This is the single place where true serialization
// matters; callers get gapless sequential numbers.
func (s *Store) NextNumber(ctx context.Context, name string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var value int64
	err = tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name=?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		value = 0
		_, err = tx.ExecContext(ctx, `INSERT INTO counters (name,value) VALUES (?,0)`, name)
	}
	if err != nil {
		return 0, err
	}
	value++
	if _, err = tx.ExecContext(ctx, `UPDATE counters SET value=? WHERE name=?`, value, name); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}
