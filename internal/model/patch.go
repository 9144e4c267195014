package model

// TaskPatch is a partial task update. Nil fields are left untouched.
//
// Notified is deliberately absent: only the reminder scheduler may set it,
// through the engine's MarkNotified path, after a delivery is confirmed.
type TaskPatch struct {
	ClientName   *string
	TaskName     *string
	DueDate      *string
	ReminderDate *string
	Completed    *bool
	Type         *TaskType
	Court        *string
	Judge        *string
	CourtDate    *string
	CaseID       *string
	CaseNumber   *string
	LegalNumber  *string
}

// Apply merges the patch onto t and returns the result.
func (p TaskPatch) Apply(t Task) Task {
	if p.ClientName != nil {
		t.ClientName = *p.ClientName
	}
	if p.TaskName != nil {
		t.TaskName = *p.TaskName
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.ReminderDate != nil {
		t.ReminderDate = *p.ReminderDate
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Court != nil {
		t.Court = *p.Court
	}
	if p.Judge != nil {
		t.Judge = *p.Judge
	}
	if p.CourtDate != nil {
		t.CourtDate = *p.CourtDate
	}
	if p.CaseID != nil {
		t.CaseID = *p.CaseID
	}
	if p.CaseNumber != nil {
		t.CaseNumber = *p.CaseNumber
	}
	if p.LegalNumber != nil {
		t.LegalNumber = *p.LegalNumber
	}
	return t
}

// Fields returns the store-level patch payload for the fields this patch
// touches, with values taken from the already normalized merged record so
// that what is persisted matches what was validated.
func (p TaskPatch) Fields(normalized Task) map[string]any {
	out := make(map[string]any)
	if p.ClientName != nil {
		out["clientName"] = normalized.ClientName
	}
	if p.TaskName != nil {
		out["taskName"] = normalized.TaskName
	}
	if p.DueDate != nil {
		out["dueDate"] = normalized.DueDate
	}
	if p.ReminderDate != nil {
		out["reminderDate"] = normalized.ReminderDate
	}
	if p.Completed != nil {
		out["completed"] = normalized.Completed
	}
	if p.Type != nil {
		out["type"] = string(normalized.Type)
	}
	if p.Court != nil {
		out["court"] = normalized.Court
	}
	if p.Judge != nil {
		out["judge"] = normalized.Judge
	}
	if p.CourtDate != nil {
		out["courtDate"] = normalized.CourtDate
	}
	if p.CaseID != nil {
		out["caseId"] = normalized.CaseID
	}
	if p.CaseNumber != nil {
		out["caseNumber"] = normalized.CaseNumber
	}
	if p.LegalNumber != nil {
		out["legalNumber"] = normalized.LegalNumber
	}
	return out
}

// CasePatch is a partial case update. Nil fields are left untouched.
type CasePatch struct {
	ClientName  *string
	CaseNumber  *string
	Subject     *string
	LegalNumber *string
	Court       *string
	Judge       *string
	NextHearing *string
	Status      *CaseStatus
	ClientPhone *string
	ClientEmail *string
	Notes       *string
}

// Apply merges the patch onto c and returns the result.
func (p CasePatch) Apply(c Case) Case {
	if p.ClientName != nil {
		c.ClientName = *p.ClientName
	}
	if p.CaseNumber != nil {
		c.CaseNumber = *p.CaseNumber
	}
	if p.Subject != nil {
		c.Subject = *p.Subject
	}
	if p.LegalNumber != nil {
		c.LegalNumber = *p.LegalNumber
	}
	if p.Court != nil {
		c.Court = *p.Court
	}
	if p.Judge != nil {
		c.Judge = *p.Judge
	}
	if p.NextHearing != nil {
		c.NextHearing = *p.NextHearing
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.ClientPhone != nil {
		c.ClientPhone = *p.ClientPhone
	}
	if p.ClientEmail != nil {
		c.ClientEmail = *p.ClientEmail
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	return c
}

// Fields returns the store-level patch payload for the fields this patch
// touches, plus the refreshed updatedAt stamp.
func (p CasePatch) Fields(normalized Case) map[string]any {
	out := make(map[string]any)
	if p.ClientName != nil {
		out["clientName"] = normalized.ClientName
	}
	if p.CaseNumber != nil {
		out["caseNumber"] = normalized.CaseNumber
	}
	if p.Subject != nil {
		out["subject"] = normalized.Subject
	}
	if p.LegalNumber != nil {
		out["legalNumber"] = normalized.LegalNumber
	}
	if p.Court != nil {
		out["court"] = normalized.Court
	}
	if p.Judge != nil {
		out["judge"] = normalized.Judge
	}
	if p.NextHearing != nil {
		out["nextHearing"] = normalized.NextHearing
	}
	if p.Status != nil {
		out["status"] = string(normalized.Status)
	}
	if p.ClientPhone != nil {
		out["clientPhone"] = normalized.ClientPhone
	}
	if p.ClientEmail != nil {
		out["clientEmail"] = normalized.ClientEmail
	}
	if p.Notes != nil {
		out["notes"] = normalized.Notes
	}
	out["updatedAt"] = normalized.UpdatedAt
	return out
}
