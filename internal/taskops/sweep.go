package taskops

import (
	"context"
	"fmt"

	"taskpulse/internal/domain"
	"taskpulse/internal/lifecycle"
)

type SweepError struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

type SweepResult struct {
	Success bool         `json:"success"`
	Scanned int          `json:"scanned"`
	Marked  int          `json:"marked"`
	Errors  []SweepError `json:"errors,omitempty"`
}

// MarkOverdueTasks is the scheduled sweep: every open task past its
// effective due date moves to overdue. The status guard makes the sweep
// idempotent, so overlapping runs are harmless. Writes commit in chunks
// bounded by maxBatchOps; a chunk failure is recorded per task and the
// sweep moves on to the next chunk.
func (s *Service) MarkOverdueTasks(ctx context.Context) SweepResult {
	tasks, err := s.store.ActiveTasks(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("overdue sweep: loading active tasks failed")
		return SweepResult{Errors: []SweepError{{Error: "storage unavailable"}}}
	}

	now := s.now()
	res := SweepResult{Success: true, Scanned: len(tasks)}

	var (
		chunk    []domain.Write
		chunkIDs []string
		ops      int
	)
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		if err := s.store.Apply(ctx, chunk...); err != nil {
			s.log.Error().Err(err).Int("tasks", len(chunkIDs)).Msg("overdue sweep: chunk commit failed")
			for _, id := range chunkIDs {
				res.Errors = append(res.Errors, SweepError{TaskID: id, Error: "chunk commit failed"})
			}
		} else {
			res.Marked += len(chunkIDs)
		}
		chunk, chunkIDs, ops = nil, nil, 0
	}

	for _, t := range tasks {
		if t.Status == domain.StatusOverdue || !lifecycle.IsTaskOverdue(t, now) {
			continue
		}
		before := t
		t.Status = domain.StatusOverdue
		t.UpdatedAt = now
		tt := t
		w := domain.Write{
			Task: &tt,
			Activity: s.activity(t.ID, "system",
				fmt.Sprintf("marked overdue; due %s", before.EffectiveDue().Format("2006-01-02"))),
		}
		if ops+w.Ops() > s.maxBatchOps {
			flush()
		}
		chunk = append(chunk, w)
		chunkIDs = append(chunkIDs, t.ID)
		ops += w.Ops()
	}
	flush()

	if res.Marked > 0 || len(res.Errors) > 0 {
		s.log.Info().
			Int("scanned", res.Scanned).
			Int("marked", res.Marked).
			Int("errors", len(res.Errors)).
			Msg("overdue sweep finished")
	}
	return res
}
