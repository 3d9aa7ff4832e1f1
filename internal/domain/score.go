package domain

import (
	"fmt"
	"time"
)

// ScoreWeights are the percentage weights applied to the four component
// scores. They are expected to sum to 100 but the overall-score formula
// clips rather than assumes.
type ScoreWeights struct {
	Completion   int
	Timeliness   int
	Quality      int
	KRAAlignment int
}

// DefaultScoreWeights applies when no override is stored.
var DefaultScoreWeights = ScoreWeights{
	Completion:   40,
	Timeliness:   30,
	Quality:      20,
	KRAAlignment: 10,
}

// ScoreResult is the ephemeral output of scoring one user over one
// period. It is not persisted directly; it feeds a snapshot.
type ScoreResult struct {
	UserID      string
	PeriodStart time.Time
	PeriodEnd   time.Time

	CompletionScore   int
	TimelinessScore   int
	QualityScore      int
	KRAAlignmentScore int
	OverallScore      int

	TaskCount      int
	CompletedCount int
	OnTimeCount    int
}

// ScoreSnapshot is the persisted form of a ScoreResult, keyed by
// (user, period). Rewrites of the same key bump Version; values are
// last-write-wins.
type ScoreSnapshot struct {
	ID          string
	Key         string
	UserID      string
	PeriodStart time.Time
	PeriodEnd   time.Time

	CompletionScore   int
	TimelinessScore   int
	QualityScore      int
	KRAAlignmentScore int
	OverallScore      int

	TaskCount      int
	CompletedCount int
	OnTimeCount    int

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotKey derives the deterministic snapshot key for a user and
// period. Period bounds are reduced to UTC calendar dates so that two
// computations of the same logical period always collide.
func SnapshotKey(userID string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s", userID, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}

// RecalcReason explains why a user's score needs recomputation.
type RecalcReason string

const (
	RecalcTaskUpdate          RecalcReason = "task_update"
	RecalcTaskDeletion        RecalcReason = "task_deletion"
	RecalcTaskReassignment    RecalcReason = "task_reassignment"
	RecalcPriorityChange      RecalcReason = "priority_change"
	RecalcBackdatedCompletion RecalcReason = "backdated_completion"
	RecalcManual              RecalcReason = "manual"
)

// ScoreRecalcRequest is a queue entry consumed (and deleted) by the
// recalculation drain.
type ScoreRecalcRequest struct {
	ID          string
	UserID      string
	Reason      RecalcReason
	TaskID      string // optional
	TriggeredBy string
	CreatedAt   time.Time
}
