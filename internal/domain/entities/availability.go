package entities

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// AvailabilityRule is one recurring weekly opening of a provider
type AvailabilityRule struct {
	ID          string       `json:"id" db:"id"`
	ProviderID  string       `json:"provider_id" db:"provider_id"`
	DayOfWeek   time.Weekday `json:"day_of_week" db:"day_of_week"`
	StartTime   TimeOfDay    `json:"start_time" db:"start_minute"`
	EndTime     TimeOfDay    `json:"end_time" db:"end_minute"`
	IsAvailable bool         `json:"is_available" db:"is_available"`
}

// Validate checks the rule's own invariants
func (r *AvailabilityRule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return apperrors.NewValidationError(fmt.Sprintf("day_of_week %d must be between 0 and 6", r.DayOfWeek))
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() {
		return apperrors.NewValidationError("rule times must fall within the day")
	}
	if r.StartTime >= r.EndTime {
		return apperrors.NewValidationError(fmt.Sprintf("rule start %s must be before end %s", r.StartTime, r.EndTime))
	}
	return nil
}

// BlockedTime is a provider-declared exclusion. Without bounds it blocks the whole day.
type BlockedTime struct {
	ID          string     `json:"id" db:"id"`
	ProviderID  string     `json:"provider_id" db:"provider_id"`
	Date        civil.Date `json:"date" db:"date"`
	StartTime   *TimeOfDay `json:"start_time,omitempty" db:"start_minute"`
	EndTime     *TimeOfDay `json:"end_time,omitempty" db:"end_minute"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	IsRecurring bool       `json:"is_recurring" db:"is_recurring"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks the block's own invariants
func (b *BlockedTime) Validate() error {
	if !b.Date.IsValid() {
		return apperrors.NewValidationError("blocked time date is invalid")
	}
	if (b.StartTime == nil) != (b.EndTime == nil) {
		return apperrors.NewValidationError("start_time and end_time must be given together")
	}
	if b.StartTime != nil {
		if !b.StartTime.Valid() || !b.EndTime.Valid() {
			return apperrors.NewValidationError("blocked times must fall within the day")
		}
		if *b.StartTime >= *b.EndTime {
			return apperrors.NewValidationError(fmt.Sprintf("block start %s must be before end %s", *b.StartTime, *b.EndTime))
		}
	}
	return nil
}

// IsWholeDay reports whether the block covers the entire day
func (b *BlockedTime) IsWholeDay() bool {
	return b.StartTime == nil || b.EndTime == nil
}

// AppliesTo reports whether the block affects date d. A recurring block
// repeats on its weekday from its own date onwards.
func (b *BlockedTime) AppliesTo(d civil.Date) bool {
	if b.Date == d {
		return true
	}
	return b.IsRecurring && !d.Before(b.Date) && Weekday(d) == Weekday(b.Date)
}

// Bounds returns the blocked interval within a day
func (b *BlockedTime) Bounds() (TimeOfDay, TimeOfDay) {
	if b.IsWholeDay() {
		return 0, MinutesPerDay
	}
	return *b.StartTime, *b.EndTime
}

// DateRange is an inclusive range of civil dates
type DateRange struct {
	From civil.Date
	To   civil.Date
}

// SingleDay returns a range covering only d
func SingleDay(d civil.Date) DateRange {
	return DateRange{From: d, To: d}
}

// Contains reports whether d lies within the range
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}
