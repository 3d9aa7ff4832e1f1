// Package recalc keeps score snapshots consistent as tasks mutate. It
// owns the snapshot table and the recalculation queue; mutations enqueue
// here and a periodic drain recomputes the affected users' current week.
package recalc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskpulse/internal/domain"
)

// Store is the slice of persistence the manager uses.
type Store interface {
	UpsertSnapshot(ctx context.Context, r domain.ScoreResult) (domain.ScoreSnapshot, error)
	EnqueueRecalc(ctx context.Context, r domain.ScoreRecalcRequest) error
	PendingRecalcs(ctx context.Context, limit int) ([]domain.ScoreRecalcRequest, error)
	DeleteRecalc(ctx context.Context, id string) error
}

// Scorer computes a user's score over a period.
type Scorer interface {
	CalculateUserScore(ctx context.Context, userID string, start, end time.Time) (domain.ScoreResult, error)
}

type Manager struct {
	store  Store
	scorer Scorer
	log    zerolog.Logger
	now    func() time.Time
}

func NewManager(store Store, scorer Scorer, log zerolog.Logger) *Manager {
	return &Manager{store: store, scorer: scorer, log: log, now: time.Now}
}

// StoreSnapshot persists a score result under its (user, period) key.
// Re-storing the same period overwrites values and bumps the version, so
// repeated recalculation is idempotent in effect but auditable.
func (m *Manager) StoreSnapshot(ctx context.Context, r domain.ScoreResult) (domain.ScoreSnapshot, error) {
	return m.store.UpsertSnapshot(ctx, r)
}

// Queue appends a recalculation request. Best effort: a queue failure is
// logged and swallowed so it can never fail the task mutation that
// triggered it.
func (m *Manager) Queue(ctx context.Context, userID string, reason domain.RecalcReason, taskID, triggeredBy string) {
	req := domain.ScoreRecalcRequest{
		UserID:      userID,
		Reason:      reason,
		TaskID:      taskID,
		TriggeredBy: triggeredBy,
	}
	if err := m.store.EnqueueRecalc(ctx, req); err != nil {
		m.log.Error().Err(err).
			Str("user_id", userID).
			Str("reason", string(reason)).
			Msg("failed to queue score recalculation")
	}
}

// DrainResult reports one run of the queue drain.
type DrainResult struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}

// ProcessQueue drains up to batchSize requests, oldest first. Each
// request recomputes the user's current ISO week and stores the
// snapshot; the queue entry is deleted only after both succeed, so a
// failed request stays queued for the next run. Per-request failures
// never stop the rest of the batch.
func (m *Manager) ProcessQueue(ctx context.Context, batchSize int) DrainResult {
	reqs, err := m.store.PendingRecalcs(ctx, batchSize)
	if err != nil {
		return DrainResult{Errors: []string{fmt.Sprintf("load queue: %v", err)}}
	}

	start, end := isoWeekWindow(m.now())
	res := DrainResult{Success: true}
	for _, req := range reqs {
		score, err := m.scorer.CalculateUserScore(ctx, req.UserID, start, end)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: score %s: %v", req.ID, req.UserID, err))
			continue
		}
		snap, err := m.store.UpsertSnapshot(ctx, score)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: snapshot %s: %v", req.ID, req.UserID, err))
			continue
		}
		if err := m.store.DeleteRecalc(ctx, req.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: dequeue: %v", req.ID, err))
			continue
		}
		res.Processed++
		m.log.Debug().
			Str("user_id", req.UserID).
			Str("reason", string(req.Reason)).
			Int("version", snap.Version).
			Int("overall", snap.OverallScore).
			Msg("score snapshot stored")
	}
	return res
}

// isoWeekWindow is the half-open week [Monday 00:00 UTC, next Monday).
func isoWeekWindow(now time.Time) (time.Time, time.Time) {
	y, mo, d := now.UTC().Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}
