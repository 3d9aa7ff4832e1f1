package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskpulse/internal/domain"
)

// TaskSource is the slice of the store the engine reads. Queries return
// non-deleted tasks only; the engine never coordinates with writers, it
// scores a snapshot-in-time.
type TaskSource interface {
	TasksForUser(ctx context.Context, userID string) ([]domain.Task, error)
	TasksInWindow(ctx context.Context, start, end time.Time) ([]domain.Task, error)
}

// ConfigSource loads the stored scoring weights. The second return is
// false when no override is stored and the documented default applies.
type ConfigSource interface {
	ScoreWeights(ctx context.Context) (domain.ScoreWeights, bool, error)
}

type Service struct {
	tasks  TaskSource
	config ConfigSource
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(tasks TaskSource, config ConfigSource, log zerolog.Logger) *Service {
	return &Service{tasks: tasks, config: config, log: log, now: time.Now}
}

// CalculateUserScore scores one user over [start, end). The window is
// half-open so adjacent periods tile without double counting; a task
// belongs to the window when its relevant date (completion, else update,
// else creation) falls inside it.
func (s *Service) CalculateUserScore(ctx context.Context, userID string, start, end time.Time) (domain.ScoreResult, error) {
	weights, stored, err := s.config.ScoreWeights(ctx)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("load score weights: %w", err)
	}
	if !stored {
		weights = domain.DefaultScoreWeights
	}

	all, err := s.tasks.TasksForUser(ctx, userID)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("load tasks for %s: %w", userID, err)
	}
	var tasks []domain.Task
	for _, t := range all {
		d := t.RelevantDate()
		if !d.Before(start) && d.Before(end) {
			tasks = append(tasks, t)
		}
	}

	b := ComputeBreakdown(tasks)
	return domain.ScoreResult{
		UserID:            userID,
		PeriodStart:       start,
		PeriodEnd:         end,
		CompletionScore:   b.Completion,
		TimelinessScore:   b.Timeliness,
		QualityScore:      b.Quality,
		KRAAlignmentScore: b.KRAAlignment,
		OverallScore:      OverallScore(b, weights),
		TaskCount:         b.TaskCount,
		CompletedCount:    b.CompletedCount,
		OnTimeCount:       b.OnTimeCount,
	}, nil
}

// RollingAverages holds overall scores over trailing windows ending now.
type RollingAverages struct {
	Days7  int `json:"days_7"`
	Days30 int `json:"days_30"`
	Days90 int `json:"days_90"`
}

func (s *Service) RollingAverages(ctx context.Context, userID string) (RollingAverages, error) {
	now := s.now()
	var out RollingAverages
	for _, w := range []struct {
		days int
		dst  *int
	}{{7, &out.Days7}, {30, &out.Days30}, {90, &out.Days90}} {
		res, err := s.CalculateUserScore(ctx, userID, now.AddDate(0, 0, -w.days), now)
		if err != nil {
			return RollingAverages{}, err
		}
		*w.dst = res.OverallScore
	}
	return out, nil
}

// SharedTask flags a task counted toward more than one user's score in
// a period. Per-assignee attribution is deliberate; this surfaces it.
type SharedTask struct {
	TaskID     string   `json:"task_id"`
	Title      string   `json:"title"`
	AssignedTo []string `json:"assigned_to"`
}

// AuditDoubleCounting lists multi-assignee tasks in [start, end).
func (s *Service) AuditDoubleCounting(ctx context.Context, start, end time.Time) ([]SharedTask, error) {
	tasks, err := s.tasks.TasksInWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load tasks in window: %w", err)
	}
	var shared []SharedTask
	for _, t := range tasks {
		if len(t.AssignedTo) > 1 {
			shared = append(shared, SharedTask{TaskID: t.ID, Title: t.Title, AssignedTo: t.AssignedTo})
		}
	}
	if len(shared) > 0 {
		s.log.Info().Int("tasks", len(shared)).Msg("multi-assignee tasks counted once per assignee")
	}
	return shared, nil
}
