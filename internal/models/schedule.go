package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" (or "HH:MM:SS") string.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	layout := "15:04"
	if strings.Count(raw, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for literals known to be valid.
func MustTimeOfDay(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Value stores the time as a postgres TIME literal.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String() + ":00", nil
}

// Scan reads TIME columns returned either as text or as a timestamp.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDay(v.Hour()*60 + v.Minute())
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("unsupported time of day source %T", src)
	}
}

func (t *TimeOfDay) scanString(raw string) error {
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText renders HH:MM in JSON payloads.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts HH:MM in JSON payloads.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	return t.scanString(string(text))
}

// ClassSchedule is a weekly meeting slot of a course.
type ClassSchedule struct {
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime TimeOfDay `db:"start_time" json:"start_time"`
	EndTime   TimeOfDay `db:"end_time" json:"end_time"`
}

// NewClassSchedule builds a schedule from HH:MM strings.
func NewClassSchedule(day, start, end string) (ClassSchedule, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return ClassSchedule{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return ClassSchedule{}, err
	}
	if e <= s {
		return ClassSchedule{}, fmt.Errorf("schedule end %s must be after start %s", e, s)
	}
	return ClassSchedule{DayOfWeek: day, StartTime: s, EndTime: e}, nil
}

// ConflictsWith reports whether both slots fall on the same day and their half-open
// intervals overlap. Touching endpoints do not conflict.
func (s ClassSchedule) ConflictsWith(other ClassSchedule) bool {
	if !strings.EqualFold(strings.TrimSpace(s.DayOfWeek), strings.TrimSpace(other.DayOfWeek)) {
		return false
	}
	return s.StartTime < other.EndTime && s.EndTime > other.StartTime
}

func (s ClassSchedule) String() string {
	return fmt.Sprintf("%s %s-%s", s.DayOfWeek, s.StartTime, s.EndTime)
}
