package providers

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// RealtimeNotifier pushes committed state changes to subscribed customers and providers
type RealtimeNotifier interface {
	// NotifyBookingStatusChange tells both parties about a lifecycle transition
	NotifyBookingStatusChange(ctx context.Context, bookingID string, status entities.BookingStatus, customerID, providerID string) error

	// NotifyNewBooking tells the provider about a new booking request
	NotifyNewBooking(ctx context.Context, booking *entities.Booking, providerID string) error

	// NotifyAvailabilityChange publishes a provider date's recomputed slots
	NotifyAvailabilityChange(ctx context.Context, providerID string, date civil.Date, slots []entities.Slot) error
}
