package repositories

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// ConflictCheck inspects the provider's bookings on the target date, read
// inside the writing transaction, and returns an error to abort the write.
type ConflictCheck func(existing []*entities.Booking) error

// StatusUpdate describes a transition applied under the booking's row lock
type StatusUpdate struct {
	// Expected is the status the booking must still hold once locked
	Expected entities.BookingStatus
	// Status is the status written
	Status entities.BookingStatus
	// Action names the trigger, used when Expected no longer holds
	Action entities.BookingAction

	CancellationReason string
	CancelledBy        string

	// Window, when set, moves the booking to a new scheduled interval
	Window *entities.TimeWindow
	// Proposed, when set, records a pending reschedule window
	Proposed *entities.TimeWindow
	// ClearProposed drops any pending reschedule window
	ClearProposed bool

	At time.Time
}

// NeedsConflictCheck reports whether the written state claims time that must be re-validated
func (u StatusUpdate) NeedsConflictCheck() bool {
	return u.Status.HoldsWindow() && (u.Window != nil || !u.Expected.HoldsWindow())
}

// PersistenceGateway abstracts durable storage of bookings, availability and blocked times
type PersistenceGateway interface {
	// LoadBookingsForProviderDate returns every booking of the provider on date, any status
	LoadBookingsForProviderDate(ctx context.Context, providerID string, date civil.Date) ([]*entities.Booking, error)

	// CreateBookingAtomic re-reads the provider's bookings for the booking's date,
	// runs conflictCheck and inserts, all in one transaction
	CreateBookingAtomic(ctx context.Context, booking *entities.Booking, conflictCheck ConflictCheck) (*entities.Booking, error)

	// UpdateBookingStatus locks the booking row, verifies update.Expected, runs
	// conflictCheck against the target date when the update claims time, and writes
	UpdateBookingStatus(ctx context.Context, id string, update StatusUpdate, conflictCheck ConflictCheck) (*entities.Booking, error)

	// LoadAvailabilityRules returns the provider's weekly rules
	LoadAvailabilityRules(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error)

	// LoadBlockedTimes returns one-off blocks inside dateRange plus recurring
	// blocks starting on or before dateRange.To
	LoadBlockedTimes(ctx context.Context, providerID string, dateRange entities.DateRange) ([]*entities.BlockedTime, error)

	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, id string) (*entities.Booking, error)

	// ListBookings retrieves bookings matching filter, newest date first
	ListBookings(ctx context.Context, filter entities.BookingFilter) ([]*entities.Booking, error)

	// GetProvider retrieves a provider by ID
	GetProvider(ctx context.Context, id string) (*entities.Provider, error)

	// GetService retrieves a service by ID
	GetService(ctx context.Context, id string) (*entities.Service, error)

	// ReplaceAvailabilityRules atomically swaps the provider's whole weekly rule set
	ReplaceAvailabilityRules(ctx context.Context, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error)

	// CreateBlockedTime stores a new block
	CreateBlockedTime(ctx context.Context, block *entities.BlockedTime) (*entities.BlockedTime, error)

	// DeleteBlockedTime removes a block owned by the provider and returns what was removed
	DeleteBlockedTime(ctx context.Context, providerID, blockedTimeID string) (*entities.BlockedTime, error)
}
