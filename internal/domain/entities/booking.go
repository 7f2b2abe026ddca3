package entities

import (
	"time"

	"cloud.google.com/go/civil"
)

// ActorRole identifies which side of a booking the caller is on
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleProvider ActorRole = "provider"
)

// Actor is the already-authenticated caller of an engine operation
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// Booking represents a customer's claim on a provider's time
type Booking struct {
	ID                 string        `json:"id" db:"id"`
	ProviderID         string        `json:"provider_id" db:"provider_id"`
	CustomerID         string        `json:"customer_id" db:"customer_id"`
	ServiceID          string        `json:"service_id" db:"service_id"`
	ScheduledDate      civil.Date    `json:"scheduled_date" db:"scheduled_date"`
	ScheduledTime      TimeOfDay     `json:"scheduled_time" db:"start_minute"`
	EndTime            TimeOfDay     `json:"end_time" db:"end_minute"`
	DurationMinutes    int           `json:"duration_minutes" db:"duration_minutes"`
	Status             BookingStatus `json:"status" db:"status"`
	TotalPrice         int64         `json:"total_price" db:"total_price"`
	Notes              string        `json:"notes,omitempty" db:"notes"`
	CancellationReason string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        string        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	ProposedDate       *civil.Date   `json:"proposed_date,omitempty" db:"proposed_date"`
	ProposedTime       *TimeOfDay    `json:"proposed_time,omitempty" db:"proposed_start_minute"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// Window returns the booking's scheduled interval
func (b *Booking) Window() TimeWindow {
	return TimeWindow{Date: b.ScheduledDate, Start: b.ScheduledTime, End: b.EndTime}
}

// ProposedWindow returns the pending reschedule interval, if any
func (b *Booking) ProposedWindow() (TimeWindow, bool) {
	if b.ProposedDate == nil || b.ProposedTime == nil {
		return TimeWindow{}, false
	}
	start := *b.ProposedTime
	return TimeWindow{Date: *b.ProposedDate, Start: start, End: start.Add(b.DurationMinutes)}, true
}

// StartsAt returns the absolute start instant in loc
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.ScheduledTime.On(b.ScheduledDate, loc)
}

// IsParty reports whether the actor is the booking's customer or provider
func (b *Booking) IsParty(actor Actor) bool {
	switch actor.Role {
	case ActorRoleCustomer:
		return actor.ID == b.CustomerID
	case ActorRoleProvider:
		return actor.ID == b.ProviderID
	}
	return false
}

// IsProvider reports whether the actor is the booking's provider
func (b *Booking) IsProvider(actor Actor) bool {
	return actor.Role == ActorRoleProvider && actor.ID == b.ProviderID
}

// Clone returns a copy safe to mutate
func (b *Booking) Clone() *Booking {
	c := *b
	if b.ProposedDate != nil {
		d := *b.ProposedDate
		c.ProposedDate = &d
	}
	if b.ProposedTime != nil {
		t := *b.ProposedTime
		c.ProposedTime = &t
	}
	return &c
}

// TimeWindow is a half-open [Start, End) interval on a single date
type TimeWindow struct {
	Date  civil.Date `json:"date"`
	Start TimeOfDay  `json:"start"`
	End   TimeOfDay  `json:"end"`
}

// Overlaps reports whether two windows share any instant. Touching endpoints do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Date == other.Date && w.Start < other.End && other.Start < w.End
}

// BookingFilter narrows ListBookings
type BookingFilter struct {
	ProviderID string
	CustomerID string
	Statuses   []BookingStatus
	From       *civil.Date
	To         *civil.Date
	Limit      int
	Offset     int
}
