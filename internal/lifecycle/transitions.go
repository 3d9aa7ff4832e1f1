// Package lifecycle holds the task state machine and the pure validators
// that gate every task mutation. Nothing here touches storage; callers
// pass the task and get a verdict back.
package lifecycle

import (
	"fmt"

	"taskpulse/internal/domain"
)

// transitions is the fixed status graph. A status absent from a row's
// set is an illegal destination; cancelled is terminal.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusNotStarted:        {domain.StatusAssigned, domain.StatusCancelled},
	domain.StatusAssigned:          {domain.StatusInProgress, domain.StatusCancelled, domain.StatusOnHold},
	domain.StatusInProgress:        {domain.StatusCompleted, domain.StatusBlocked, domain.StatusOnHold, domain.StatusPendingReview, domain.StatusOverdue},
	domain.StatusBlocked:           {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusCompleted:         {domain.StatusRevisionRequested},
	domain.StatusCancelled:         {},
	domain.StatusOnHold:            {domain.StatusInProgress, domain.StatusAssigned, domain.StatusCancelled},
	domain.StatusPendingReview:     {domain.StatusCompleted, domain.StatusRevisionRequested},
	domain.StatusRevisionRequested: {domain.StatusInProgress},
	domain.StatusOverdue:           {domain.StatusInProgress, domain.StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to domain.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateStatusTransition returns domain.ErrInvalidTransition when
// from -> to is not an edge of the status graph.
func ValidateStatusTransition(from, to domain.Status) error {
	if _, known := transitions[from]; !known {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}
