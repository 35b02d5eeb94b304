package task

import (
	"fmt"

	"github.com/Strob0t/taskrelay/internal/domain"
)

// transitions lists, for every target status, the statuses it may be
// entered from. pending → ready is owned by producers and never performed
// by the queue.
var transitions = map[Status][]Status{
	StatusInProgress: {StatusReady, StatusBlocked},
	StatusCompleted:  {StatusInProgress},
	StatusFailed:     {StatusInProgress},
	StatusBlocked:    {StatusInProgress},
	StatusReady:      {StatusFailed, StatusBlocked},
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CheckTransition returns nil when from → to is allowed. A terminal source
// status yields domain.ErrTerminal, anything else domain.ErrConflict.
func CheckTransition(id string, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.IsTerminal() && to != StatusReady {
		return fmt.Errorf("%w: task %s is %s", domain.ErrTerminal, id, from)
	}
	return fmt.Errorf("%w: task %s cannot move from %s to %s", domain.ErrConflict, id, from, to)
}
