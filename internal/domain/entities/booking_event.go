package entities

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// BookingEventType represents the type of realtime booking event
type BookingEventType string

const (
	BookingEventTypeCreated             BookingEventType = "booking.created"
	BookingEventTypeStatusChanged       BookingEventType = "booking.status_changed"
	BookingEventTypeAvailabilityChanged BookingEventType = "availability.changed"
)

// BookingEvent is pushed to subscribed providers and customers
type BookingEvent struct {
	ID         string           `json:"id"`
	EventType  BookingEventType `json:"event_type"`
	BookingID  string           `json:"booking_id,omitempty"`
	ProviderID string           `json:"provider_id"`
	CustomerID string           `json:"customer_id,omitempty"`
	Status     BookingStatus    `json:"status,omitempty"`
	Date       *civil.Date      `json:"date,omitempty"`
	Booking    *Booking         `json:"booking,omitempty"`
	Slots      []Slot           `json:"slots,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewBookingCreatedEvent describes a freshly created booking
func NewBookingCreatedEvent(booking *Booking) *BookingEvent {
	date := booking.ScheduledDate
	return &BookingEvent{
		ID:         uuid.New().String(),
		EventType:  BookingEventTypeCreated,
		BookingID:  booking.ID,
		ProviderID: booking.ProviderID,
		CustomerID: booking.CustomerID,
		Status:     booking.Status,
		Date:       &date,
		Booking:    booking,
		Timestamp:  time.Now(),
	}
}

// NewBookingStatusChangedEvent describes a lifecycle transition
func NewBookingStatusChangedEvent(bookingID string, status BookingStatus, customerID, providerID string) *BookingEvent {
	return &BookingEvent{
		ID:         uuid.New().String(),
		EventType:  BookingEventTypeStatusChanged,
		BookingID:  bookingID,
		ProviderID: providerID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
	}
}

// NewAvailabilityChangedEvent carries the recomputed slots of a provider date
func NewAvailabilityChangedEvent(providerID string, date civil.Date, slots []Slot) *BookingEvent {
	return &BookingEvent{
		ID:         uuid.New().String(),
		EventType:  BookingEventTypeAvailabilityChanged,
		ProviderID: providerID,
		Date:       &date,
		Slots:      slots,
		Timestamp:  time.Now(),
	}
}
