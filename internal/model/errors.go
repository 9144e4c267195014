package model

import (
	"errors"
	"strings"
)

// Violation is a single broken validation rule on a named field.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + " " + v.Message
}

// ValidationError carries every rule a record violated, not just the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "model: validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the error includes a violation for the given field.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// AsValidationError unwraps err to a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
