package scheduling

import (
	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// BookedIntervals returns the windows of non-cancelled bookings on date, skipping excludeID
func BookedIntervals(bookings []*entities.Booking, date civil.Date, excludeID string) []Interval {
	var booked []Interval
	for _, b := range bookings {
		if b == nil || b.ID == excludeID || !b.Status.HoldsWindow() || b.ScheduledDate != date {
			continue
		}
		booked = append(booked, Interval{Start: b.ScheduledTime, End: b.EndTime})
	}
	return booked
}

// FindConflict returns the first non-cancelled booking overlapping window, ignoring
// the booking with excludeID. It returns nil when the window is free.
func FindConflict(bookings []*entities.Booking, window entities.TimeWindow, excludeID string) *entities.Booking {
	for _, b := range bookings {
		if b == nil || b.ID == excludeID || !b.Status.HoldsWindow() {
			continue
		}
		if b.Window().Overlaps(window) {
			return b
		}
	}
	return nil
}

// HasConflict reports whether window overlaps any non-cancelled booking other than excludeID
func HasConflict(bookings []*entities.Booking, window entities.TimeWindow, excludeID string) bool {
	return FindConflict(bookings, window, excludeID) != nil
}
