package model

import (
	"errors"
	"time"
)

// ErrUnparsableDate is returned by ParseTime for strings that match none of
// the accepted ISO-8601 layouts.
var ErrUnparsableDate = errors.New("model: unparsable date")

// Layouts accepted for incoming date fields. Legacy records hold anything
// from full RFC 3339 timestamps down to bare dates produced by HTML
// date/datetime-local inputs.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 date or date-time string. Layouts without a
// zone are interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparsableDate
}

// canonicalTime reformats a parseable date string to RFC 3339 UTC.
// Unparsable input is returned unchanged so validation can name it.
func canonicalTime(s string) string {
	t, err := ParseTime(s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatStamp renders a time as the canonical RFC 3339 UTC string stored in
// records.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
