// Package scoring computes per-user performance scores from task sets.
// The component math is pure; the Service wraps it with storage access
// and period windowing.
package scoring

import (
	"math"

	"taskpulse/internal/domain"
)

// Quality points per completed task, by verification outcome.
const (
	qualityVerified   = 100
	qualityRejected   = 40
	qualityUnverified = 80
)

// Breakdown holds the four component scores and the counts they were
// derived from, for one user over one set of tasks.
type Breakdown struct {
	Completion   int
	Timeliness   int
	Quality      int
	KRAAlignment int

	TaskCount      int
	CompletedCount int
	OnTimeCount    int
}

// isCompleted treats a task as completed for scoring purposes. A task
// sent back for revision keeps its completion timestamp and still counts
// as completed work, scored down by the quality component.
func isCompleted(t domain.Task) bool {
	return t.Status == domain.StatusCompleted || t.CompletedAt != nil
}

// isOnTime reports whether a completed task met its effective due date.
// Tasks without a due date are on time by definition. This comparison is
// instant-based, unlike overdue detection which works in calendar days.
func isOnTime(t domain.Task) bool {
	due := t.EffectiveDue()
	if due == nil {
		return true
	}
	finished := t.UpdatedAt
	if t.CompletedAt != nil {
		finished = *t.CompletedAt
	}
	return !finished.After(*due)
}

func qualityPoints(t domain.Task) int {
	if t.Status == domain.StatusRevisionRequested {
		return qualityRejected
	}
	if t.Verification != nil {
		switch *t.Verification {
		case domain.VerificationVerified:
			return qualityVerified
		case domain.VerificationRejected:
			return qualityRejected
		}
	}
	return qualityUnverified
}

// ComputeBreakdown scores one user's task set. Every ratio rounds to the
// nearest integer; empty denominators score zero rather than dividing.
func ComputeBreakdown(tasks []domain.Task) Breakdown {
	var b Breakdown
	b.TaskCount = len(tasks)
	if b.TaskCount == 0 {
		return b
	}

	kraLinked := 0
	qualitySum := 0
	for _, t := range tasks {
		if t.KRAID != "" {
			kraLinked++
		}
		if !isCompleted(t) {
			continue
		}
		b.CompletedCount++
		qualitySum += qualityPoints(t)
		if isOnTime(t) {
			b.OnTimeCount++
		}
	}

	b.Completion = roundRatio(b.CompletedCount, b.TaskCount)
	b.KRAAlignment = roundRatio(kraLinked, b.TaskCount)
	if b.CompletedCount > 0 {
		b.Timeliness = roundRatio(b.OnTimeCount, b.CompletedCount)
		b.Quality = round(float64(qualitySum) / float64(b.CompletedCount))
	}
	return b
}

// OverallScore folds a breakdown into a single weighted score, clipped
// to [0,100]. The weights are nominally percentages summing to 100, but
// the clip keeps the result sane when they do not.
func OverallScore(b Breakdown, w domain.ScoreWeights) int {
	sum := float64(b.Completion)*float64(w.Completion)/100 +
		float64(b.Timeliness)*float64(w.Timeliness)/100 +
		float64(b.Quality)*float64(w.Quality)/100 +
		float64(b.KRAAlignment)*float64(w.KRAAlignment)/100
	return round(math.Min(100, math.Max(0, sum)))
}

func roundRatio(num, den int) int {
	return round(100 * float64(num) / float64(den))
}

func round(f float64) int {
	return int(math.Round(f))
}
