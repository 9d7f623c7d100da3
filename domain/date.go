package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in YYYY-MM-DD form.
type Date string

// DateOf truncates t to a calendar day in loc. A zero time yields an empty Date.
func DateOf(t time.Time, loc *time.Location) Date {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc).Format(dateLayout))
}

// ParseDate validates a YYYY-MM-DD string. RFC3339 timestamps are accepted and truncated.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return Date(t.Format(dateLayout)), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", WrapError(ErrCodeInvalid, "invalid date", err)
	}
	return Date(t.Format(dateLayout)), nil
}

func (d Date) String() string { return string(d) }

func (d Date) IsZero() bool { return d == "" }

// Time returns midnight of the day in loc.
func (d Date) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateLayout, string(d), loc)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = ""
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
