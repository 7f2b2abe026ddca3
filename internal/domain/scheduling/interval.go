// Package scheduling holds the pure interval arithmetic behind slot generation
// and conflict detection. Nothing here performs I/O.
package scheduling

import (
	"sort"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// Interval is a half-open [Start, End) span of minutes within one day
type Interval struct {
	Start entities.TimeOfDay
	End   entities.TimeOfDay
}

// Empty reports whether the interval has no length
func (i Interval) Empty() bool {
	return i.End <= i.Start
}

// Overlaps reports whether i and o share any minute. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely within i
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Normalize sorts intervals and merges any that overlap or touch. Empty
// intervals are dropped.
func Normalize(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, in := range intervals {
		if !in.Empty() {
			sorted = append(sorted, in)
		}
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start == sorted[b].Start {
			return sorted[a].End < sorted[b].End
		}
		return sorted[a].Start < sorted[b].Start
	})

	merged := make([]Interval, 0, len(sorted))
	for _, in := range sorted {
		last := len(merged) - 1
		if last >= 0 && in.Start <= merged[last].End {
			if in.End > merged[last].End {
				merged[last].End = in.End
			}
			continue
		}
		merged = append(merged, in)
	}
	return merged
}

// Subtract removes cut from every interval in open, splitting where needed
func Subtract(open []Interval, cut Interval) []Interval {
	if cut.Empty() {
		return open
	}
	out := make([]Interval, 0, len(open)+1)
	for _, in := range open {
		if !in.Overlaps(cut) {
			out = append(out, in)
			continue
		}
		if in.Start < cut.Start {
			out = append(out, Interval{Start: in.Start, End: cut.Start})
		}
		if cut.End < in.End {
			out = append(out, Interval{Start: cut.End, End: in.End})
		}
	}
	return out
}

// SubtractAll removes every cut from open
func SubtractAll(open []Interval, cuts []Interval) []Interval {
	for _, cut := range cuts {
		open = Subtract(open, cut)
		if len(open) == 0 {
			break
		}
	}
	return open
}

// FitsWithin reports whether w lies entirely inside one of the open intervals
func FitsWithin(open []Interval, w Interval) bool {
	for _, in := range open {
		if in.Contains(w) {
			return true
		}
	}
	return false
}
