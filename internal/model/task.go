// Package model defines the canonical Task and Case records shared by the
// sync engine, the reminder scheduler, and the backup engine.
//
// Records travel over the wire as flat JSON documents. Date fields are kept
// as ISO-8601 strings in the record itself (the shape legacy stores already
// hold); ParseTime converts them when components need wall-clock values.
package model

import "time"

// TaskType distinguishes ordinary deadline work from court hearings.
type TaskType string

const (
	TaskTypeRegular TaskType = "regular"
	TaskTypeHearing TaskType = "hearing"
)

// IsValid reports whether t is a recognized task type.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeRegular, TaskTypeHearing:
		return true
	default:
		return false
	}
}

// Task is a trackable unit of work with a due date and optional
// reminder/hearing metadata.
//
// Court, Judge and CourtDate are only meaningful when Type is
// TaskTypeHearing; Court and CourtDate are then required. CaseID,
// CaseNumber and LegalNumber are informational references to a Case
// with no referential integrity behind them.
type Task struct {
	ID           string   `json:"id"`
	ClientName   string   `json:"clientName" validate:"required"`
	TaskName     string   `json:"taskName" validate:"required"`
	DueDate      string   `json:"dueDate" validate:"required"`
	ReminderDate string   `json:"reminderDate,omitempty"`
	Completed    bool     `json:"completed"`
	Notified     bool     `json:"notified"`
	Type         TaskType `json:"type"`
	Court        string   `json:"court,omitempty"`
	Judge        string   `json:"judge,omitempty"`
	CourtDate    string   `json:"courtDate,omitempty"`
	CaseID       string   `json:"caseId,omitempty"`
	CaseNumber   string   `json:"caseNumber,omitempty"`
	LegalNumber  string   `json:"legalNumber,omitempty"`
}

// DisplayFlags is the derived presentation state of a task.
type DisplayFlags struct {
	IsOverdue   bool
	IsDueSoon   bool
	HasReminder bool
	IsHearing   bool
}

// Flags computes the derived display state of t at the given instant.
// IsDueSoon means the due date is within the next 24 hours.
func Flags(t Task, now time.Time) DisplayFlags {
	f := DisplayFlags{
		HasReminder: t.ReminderDate != "" && !t.Notified,
		IsHearing:   t.Type == TaskTypeHearing,
	}
	due, err := ParseTime(t.DueDate)
	if err != nil {
		return f
	}
	f.IsOverdue = due.Before(now) && !t.Completed
	until := due.Sub(now)
	f.IsDueSoon = !t.Completed && until > 0 && until <= 24*time.Hour
	return f
}
