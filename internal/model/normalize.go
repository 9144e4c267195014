package model

import (
	"strings"
	"time"
)

// NormalizeTask trims and canonicalizes a loosely shaped task record and
// validates the result. It is pure: no I/O, deterministic for a given input.
//
// Missing optional strings become ""; a missing type defaults to regular.
// Parseable dates are rewritten to RFC 3339 UTC. The returned error, if any,
// is a *ValidationError naming every violated rule.
func NormalizeTask(in Task) (Task, error) {
	t := in
	t.ID = strings.TrimSpace(t.ID)
	t.ClientName = strings.TrimSpace(t.ClientName)
	t.TaskName = strings.TrimSpace(t.TaskName)
	t.Court = strings.TrimSpace(t.Court)
	t.Judge = strings.TrimSpace(t.Judge)
	t.CaseID = strings.TrimSpace(t.CaseID)
	t.CaseNumber = strings.TrimSpace(t.CaseNumber)
	t.LegalNumber = strings.TrimSpace(t.LegalNumber)
	t.DueDate = strings.TrimSpace(t.DueDate)
	t.ReminderDate = strings.TrimSpace(t.ReminderDate)
	t.CourtDate = strings.TrimSpace(t.CourtDate)

	if t.Type == "" {
		t.Type = TaskTypeRegular
	}
	if t.DueDate != "" {
		t.DueDate = canonicalTime(t.DueDate)
	}
	if t.ReminderDate != "" {
		t.ReminderDate = canonicalTime(t.ReminderDate)
	}
	if t.CourtDate != "" {
		t.CourtDate = canonicalTime(t.CourtDate)
	}

	if err := runValidation(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// NormalizeCase trims and canonicalizes a loosely shaped case record and
// validates the result. A missing status defaults to active; a missing
// createdAt defaults to now (its absence is itself valid, unlike the task
// date fields). UpdatedAt is left alone when present so that re-validating
// a stored record does not forge a mutation timestamp.
func NormalizeCase(in Case, now time.Time) (Case, error) {
	c := in
	c.ID = strings.TrimSpace(c.ID)
	c.ClientName = strings.TrimSpace(c.ClientName)
	c.CaseNumber = strings.TrimSpace(c.CaseNumber)
	c.Subject = strings.TrimSpace(c.Subject)
	c.LegalNumber = strings.TrimSpace(c.LegalNumber)
	c.Court = strings.TrimSpace(c.Court)
	c.Judge = strings.TrimSpace(c.Judge)
	c.ClientPhone = strings.TrimSpace(c.ClientPhone)
	c.ClientEmail = strings.TrimSpace(c.ClientEmail)
	c.Notes = strings.TrimSpace(c.Notes)
	c.NextHearing = strings.TrimSpace(c.NextHearing)
	c.CreatedAt = strings.TrimSpace(c.CreatedAt)
	c.UpdatedAt = strings.TrimSpace(c.UpdatedAt)

	if c.Status == "" {
		c.Status = CaseStatusActive
	}
	if c.CreatedAt == "" {
		c.CreatedAt = FormatStamp(now)
	} else {
		c.CreatedAt = canonicalTime(c.CreatedAt)
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	} else {
		c.UpdatedAt = canonicalTime(c.UpdatedAt)
	}
	if c.NextHearing != "" {
		c.NextHearing = canonicalTime(c.NextHearing)
	}

	if err := runValidation(c); err != nil {
		return Case{}, err
	}
	return c, nil
}
