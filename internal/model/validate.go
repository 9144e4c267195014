package model

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate holds the shared validator instance. Tag rules cover the
// unconditional required fields; struct-level rules cover dates and the
// hearing-only requirements.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(taskRules, Task{})
	v.RegisterStructValidation(caseRules, Case{})
	return v
}

// Messages per validation tag, keyed the way violations are reported.
var ruleMessages = map[string]string{
	"required":             "is required",
	"date":                 "is not a valid date",
	"before_due":           "must not be after dueDate",
	"required_for_hearing": "is required for hearings",
	"oneof":                "is not a recognized value",
}

func taskRules(sl validator.StructLevel) {
	t := sl.Current().Interface().(Task)

	if !t.Type.IsValid() {
		sl.ReportError(t.Type, "type", "Type", "oneof", "")
	}

	var due *time.Time
	if t.DueDate != "" {
		d, err := ParseTime(t.DueDate)
		if err != nil {
			sl.ReportError(t.DueDate, "dueDate", "DueDate", "date", "")
		} else {
			due = &d
		}
	}

	// An unparsable optional date is an error, never coerced to "now".
	if t.ReminderDate != "" {
		r, err := ParseTime(t.ReminderDate)
		switch {
		case err != nil:
			sl.ReportError(t.ReminderDate, "reminderDate", "ReminderDate", "date", "")
		case due != nil && r.After(*due):
			sl.ReportError(t.ReminderDate, "reminderDate", "ReminderDate", "before_due", "")
		}
	}

	if t.CourtDate != "" {
		if _, err := ParseTime(t.CourtDate); err != nil {
			sl.ReportError(t.CourtDate, "courtDate", "CourtDate", "date", "")
		}
	}

	if t.Type == TaskTypeHearing {
		if t.Court == "" {
			sl.ReportError(t.Court, "court", "Court", "required_for_hearing", "")
		}
		if t.CourtDate == "" {
			sl.ReportError(t.CourtDate, "courtDate", "CourtDate", "required_for_hearing", "")
		}
	}
}

func caseRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(Case)

	if !c.Status.IsValid() {
		sl.ReportError(c.Status, "status", "Status", "oneof", "")
	}
	for _, f := range []struct {
		value, name, structName string
	}{
		{c.NextHearing, "nextHearing", "NextHearing"},
		{c.CreatedAt, "createdAt", "CreatedAt"},
		{c.UpdatedAt, "updatedAt", "UpdatedAt"},
	} {
		if f.value == "" {
			continue
		}
		if _, err := ParseTime(f.value); err != nil {
			sl.ReportError(f.value, f.name, f.structName, "date", "")
		}
	}
}

// runValidation validates v and converts validator errors into a
// *ValidationError listing every violated rule.
func runValidation(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		msg, ok := ruleMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		ve.Violations = append(ve.Violations, Violation{Field: fe.Field(), Message: msg})
	}
	return ve
}
