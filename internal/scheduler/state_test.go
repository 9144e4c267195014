package scheduler

import (
	"testing"
	"time"

	"github.com/lawdesk/docket/internal/model"
)

// TestClassify covers the derived state machine.
func TestClassify(t *testing.T) {
	now := time.Date(2025, 1, 9, 9, 0, 30, 0, time.UTC)

	tests := []struct {
		name string
		task model.Task
		want State
	}{
		{
			name: "reminder elapsed within the poll window",
			task: model.Task{DueDate: "2025-01-10", ReminderDate: "2025-01-09T09:00"},
			want: StateDue,
		},
		{
			name: "reminder in the future",
			task: model.Task{DueDate: "2025-01-10", ReminderDate: "2025-01-09T10:00"},
			want: StatePending,
		},
		{
			name: "no reminder, due date elapsed",
			task: model.Task{DueDate: "2025-01-09T08:00"},
			want: StateDue,
		},
		{
			name: "no reminder, due date ahead",
			task: model.Task{DueDate: "2025-01-10"},
			want: StateNoReminder,
		},
		{
			name: "already notified is never due again",
			task: model.Task{DueDate: "2025-01-01", ReminderDate: "2025-01-01", Notified: true},
			want: StateNotified,
		},
		{
			name: "completed tasks are excluded",
			task: model.Task{DueDate: "2025-01-01", ReminderDate: "2025-01-01", Completed: true},
			want: StateNoReminder,
		},
		{
			name: "reminder long past is still caught",
			task: model.Task{DueDate: "2025-01-10", ReminderDate: "2024-12-01T09:00"},
			want: StateDue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.task, now); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
