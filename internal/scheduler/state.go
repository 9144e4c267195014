package scheduler

import (
	"time"

	"github.com/lawdesk/docket/internal/model"
)

// State is the derived reminder state of a task. It is computed from the
// task's fields on every scan, never stored.
type State int

const (
	// StateNoReminder: nothing to do — no reminder set and the due date has
	// not elapsed, or the task is completed.
	StateNoReminder State = iota

	// StatePending: a reminder is set for the future.
	StatePending

	// StateDue: the reminder or due timestamp has elapsed and no
	// notification has fired yet.
	StateDue

	// StateNotified: a notification has already fired for the current
	// reminder/due pair. Only an explicit reset leaves this state.
	StateNotified
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDue:
		return "due"
	case StateNotified:
		return "notified"
	default:
		return "no-reminder"
	}
}

// Classify derives the reminder state of t at the given instant.
//
// A task is Due as soon as now reaches its reminder (or due) timestamp and
// stays Due until the notified flag is persisted. With scans every poll
// interval this realizes the documented [0, pollInterval] tolerance window
// behind each timestamp; a timestamp that slips past its window (missed
// scan, process restart) is still caught on the next scan rather than
// dropped. Completed tasks are excluded from reminder scanning entirely.
func Classify(t model.Task, now time.Time) State {
	if t.Notified {
		return StateNotified
	}
	if t.Completed {
		return StateNoReminder
	}

	if t.ReminderDate != "" {
		if r, err := model.ParseTime(t.ReminderDate); err == nil {
			if !now.Before(r) {
				return StateDue
			}
			return StatePending
		}
	}
	if due, err := model.ParseTime(t.DueDate); err == nil && !now.Before(due) {
		return StateDue
	}
	return StateNoReminder
}
