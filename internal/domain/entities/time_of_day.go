package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// MinutesPerDay is the exclusive upper bound of a start and the inclusive upper bound of an end
const MinutesPerDay = 24 * 60

// TimeOfDay is a local wall-clock time expressed in minutes since midnight.
// Its text form is HH:MM; 24:00 is accepted as the end of the day.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hours and minutes
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses an HH:MM string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

// MustParseTimeOfDay is ParseTimeOfDay for literals
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String formats the value as HH:MM
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Valid reports whether t lies within a day
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

// Add returns t shifted by the given number of minutes
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// On returns the absolute instant of t on date d in loc
func (t TimeOfDay) On(d civil.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc).Add(time.Duration(t) * time.Minute)
}

// MarshalJSON implements json.Marshaler
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeOfDayOf returns the wall-clock time of instant in loc
func TimeOfDayOf(instant time.Time, loc *time.Location) TimeOfDay {
	local := instant.In(loc)
	return NewTimeOfDay(local.Hour(), local.Minute())
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Weekday returns the weekday of a civil date
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
