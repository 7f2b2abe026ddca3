package scheduling

import (
	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// DayInputs is everything slot generation needs for one provider date
type DayInputs struct {
	Date     civil.Date
	Rules    []*entities.AvailabilityRule
	Blocks   []*entities.BlockedTime
	Bookings []*entities.Booking
}

// AvailableIntervals returns the provider's open time on the date: the
// available weekly rules for its weekday minus every block that applies to it.
// Bookings are not subtracted.
func AvailableIntervals(date civil.Date, rules []*entities.AvailabilityRule, blocks []*entities.BlockedTime) []Interval {
	weekday := entities.Weekday(date)

	var open []Interval
	for _, rule := range rules {
		if rule.IsAvailable && rule.DayOfWeek == weekday {
			open = append(open, Interval{Start: rule.StartTime, End: rule.EndTime})
		}
	}
	if len(open) == 0 {
		return nil
	}
	open = Normalize(open)

	for _, block := range blocks {
		if !block.AppliesTo(date) {
			continue
		}
		start, end := block.Bounds()
		open = Subtract(open, Interval{Start: start, End: end})
		if len(open) == 0 {
			return nil
		}
	}
	return open
}

// OpenIntervals returns AvailableIntervals minus the windows of non-cancelled bookings on the date
func OpenIntervals(in DayInputs) []Interval {
	open := AvailableIntervals(in.Date, in.Rules, in.Blocks)
	if len(open) == 0 {
		return nil
	}
	return SubtractAll(open, BookedIntervals(in.Bookings, in.Date, ""))
}

// GenerateSlots walks the open intervals of the day in steps of durationMinutes.
// Output is ascending and identical for identical inputs.
func GenerateSlots(in DayInputs, durationMinutes int) []entities.Slot {
	if durationMinutes <= 0 {
		return []entities.Slot{}
	}
	return WalkSlots(OpenIntervals(in), durationMinutes)
}

// WalkSlots emits [t, t+d) for each step that fits entirely inside an interval.
// Stepping restarts at every interval start so a slot never straddles a gap.
func WalkSlots(open []Interval, durationMinutes int) []entities.Slot {
	slots := []entities.Slot{}
	if durationMinutes <= 0 {
		return slots
	}
	for _, in := range open {
		for start := in.Start; start.Add(durationMinutes) <= in.End; start = start.Add(durationMinutes) {
			slots = append(slots, entities.Slot{Start: start, End: start.Add(durationMinutes)})
		}
	}
	return slots
}
