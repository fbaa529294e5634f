package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the wire format of use timestamps.
	DateTimeLayout = "2006-01-02T15:04:05"
)

// Date is a calendar date held at UTC midnight.
type Date struct {
	time.Time
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date t falls on in its own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. A datetime of the form YYYY-MM-DDT...
// is accepted and cut to its date part; any other trailing text is rejected.
func ParseDate(value string) (Date, error) {
	if len(value) > len(DateLayout) {
		if value[len(DateLayout)] != 'T' {
			return Date{}, fmt.Errorf("date %q has trailing text", value)
		}
		value = value[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date {
	return &d
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDateTime accepts RFC 3339 or the zone-less wire layout (read as UTC) and
// drops precision below the second.
func ParseDateTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return NormalizeDateTime(t), nil
	}
	t, err := time.Parse(DateTimeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDateTime(t), nil
}

// NormalizeDateTime converts t to UTC whole seconds.
func NormalizeDateTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ToMillis returns milliseconds since the Unix epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
