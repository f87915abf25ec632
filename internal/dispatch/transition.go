package dispatch

import (
	"fmt"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// transitions is the allowed forward graph. Completed is deliberately absent
// from the Arrived row: it is reachable only through ReportCompletion, never
// through a bare status update.
var transitions = map[string]string{
	domain.StatusUnassigned: domain.StatusAssigned,
	domain.StatusAssigned:   domain.StatusOnTheWay,
	domain.StatusOnTheWay:   domain.StatusArrived,
}

// CanTransition reports whether a bare status update from one status to
// another is allowed.
func CanTransition(from, to string) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// ValidateTransition returns ErrInvalidTransition, annotated with both
// statuses, when the move is not allowed.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// KnownStatus reports whether s is one of the five lifecycle statuses.
func KnownStatus(s string) bool {
	switch s {
	case domain.StatusUnassigned, domain.StatusAssigned, domain.StatusOnTheWay,
		domain.StatusArrived, domain.StatusCompleted:
		return true
	}
	return false
}
