package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vaccine-tracker/internal/errs"
)

const (
	dateLayout = "2006-01-02"
	// TimestampLayout renders instants as UTC ISO-8601 with milliseconds.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Schedule is when a reminder fires relative to an appointment.
type Schedule struct {
	AppointmentAt time.Time
	ReminderAt    time.Time
	Delay         time.Duration
	Immediate     bool
}

// ComputeSchedule anchors appointmentDate at hourUTC and places the reminder
// offsetDays earlier. Delay is never negative.
func ComputeSchedule(appointmentDate string, offsetDays, hourUTC int, now time.Time) (Schedule, error) {
	if offsetDays < 0 {
		return Schedule{}, errs.New(errs.KindInvalidRequest, "reminder_offset_days must be a non-negative integer")
	}
	date, err := parseDate(appointmentDate)
	if err != nil {
		return Schedule{}, err
	}

	appointmentAt := date.Add(time.Duration(hourUTC) * time.Hour)
	// Calendar arithmetic; a duration of offsetDays*24h overflows for large offsets.
	reminderAt := appointmentAt.AddDate(0, 0, -offsetDays)

	s := Schedule{
		AppointmentAt: appointmentAt,
		ReminderAt:    reminderAt,
		Immediate:     !reminderAt.After(now),
	}
	if !s.Immediate {
		s.Delay = reminderAt.Sub(now)
	}
	return s, nil
}

// parseDate accepts YYYY-MM-DD only when it names a real calendar day.
func parseDate(v string) (time.Time, error) {
	invalid := errs.New(errs.KindInvalidRequest, "appointment_date must be a valid date (YYYY-MM-DD)")
	if !datePattern.MatchString(v) {
		return time.Time{}, invalid
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil || t.Format(dateLayout) != v {
		return time.Time{}, invalid
	}
	return t.UTC(), nil
}

// ParseOffsetDays reads reminder_offset_days from raw JSON. Absent or null
// yields def. Integers and integer strings are accepted when non-negative.
func ParseOffsetDays(raw json.RawMessage, def int) (int, error) {
	invalid := errs.New(errs.KindInvalidRequest, "reminder_offset_days must be a non-negative integer")

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return def, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid
		}
		text = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, invalid
	}
	return n, nil
}

// ParseOptionalID reads a numeric id given as a JSON number or string.
func ParseOptionalID(raw json.RawMessage, field string) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errs.New(errs.KindInvalidRequest, field+" must be an integer")
		}
		text = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil || n <= 0 {
		return nil, errs.New(errs.KindInvalidRequest, field+" must be a positive integer")
	}
	return &n, nil
}

// RawString renders a JSON string or number as plain text, "" when absent.
func RawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(raw)
}

// JobID is the idempotency key for a reminder. Identical coordinates always
// produce the same id.
func JobID(userID, vaccineKey, appointmentDate string, offsetDays int) string {
	return fmt.Sprintf("reminder:%s:%s:%s:%d", userID, vaccineKey, appointmentDate, offsetDays)
}
