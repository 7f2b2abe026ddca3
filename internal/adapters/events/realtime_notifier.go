package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
)

// BusNotifier delivers booking events over an EventBus to the provider's and
// customer's channels, plus the shared booking updates channel.
type BusNotifier struct {
	bus providers.EventBus
}

// NewBusNotifier creates a notifier publishing to bus
func NewBusNotifier(bus providers.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// NotifyBookingStatusChange tells both parties about a lifecycle transition
func (n *BusNotifier) NotifyBookingStatusChange(ctx context.Context, bookingID string, status entities.BookingStatus, customerID, providerID string) error {
	event := entities.NewBookingStatusChangedEvent(bookingID, status, customerID, providerID)
	return n.publish(ctx, event,
		providers.GetProviderChannel(providerID),
		providers.GetCustomerChannel(customerID),
		providers.EventChannelBookingUpdates,
	)
}

// NotifyNewBooking tells the provider about a new booking request
func (n *BusNotifier) NotifyNewBooking(ctx context.Context, booking *entities.Booking, providerID string) error {
	event := entities.NewBookingCreatedEvent(booking)
	event.ProviderID = providerID
	return n.publish(ctx, event,
		providers.GetProviderChannel(providerID),
		providers.EventChannelBookingUpdates,
	)
}

// NotifyAvailabilityChange publishes a provider date's open windows
func (n *BusNotifier) NotifyAvailabilityChange(ctx context.Context, providerID string, date civil.Date, slots []entities.Slot) error {
	event := entities.NewAvailabilityChangedEvent(providerID, date, slots)
	return n.publish(ctx, event, providers.GetProviderChannel(providerID))
}

func (n *BusNotifier) publish(ctx context.Context, event *entities.BookingEvent, channels ...string) error {
	var errs []error
	for _, channel := range channels {
		if channel == providers.EventChannelCustomerPrefix {
			continue
		}
		if err := n.bus.Publish(ctx, channel, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// FanoutNotifier forwards every notification to each of its notifiers
type FanoutNotifier struct {
	notifiers []providers.RealtimeNotifier
}

// NewFanoutNotifier combines notifiers, skipping nil entries
func NewFanoutNotifier(notifiers ...providers.RealtimeNotifier) *FanoutNotifier {
	f := &FanoutNotifier{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

func (f *FanoutNotifier) NotifyBookingStatusChange(ctx context.Context, bookingID string, status entities.BookingStatus, customerID, providerID string) error {
	return f.each(func(n providers.RealtimeNotifier) error {
		return n.NotifyBookingStatusChange(ctx, bookingID, status, customerID, providerID)
	})
}

func (f *FanoutNotifier) NotifyNewBooking(ctx context.Context, booking *entities.Booking, providerID string) error {
	return f.each(func(n providers.RealtimeNotifier) error {
		return n.NotifyNewBooking(ctx, booking, providerID)
	})
}

func (f *FanoutNotifier) NotifyAvailabilityChange(ctx context.Context, providerID string, date civil.Date, slots []entities.Slot) error {
	return f.each(func(n providers.RealtimeNotifier) error {
		return n.NotifyAvailabilityChange(ctx, providerID, date, slots)
	})
}

// each calls every notifier even when an earlier one fails
func (f *FanoutNotifier) each(fn func(providers.RealtimeNotifier) error) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ providers.RealtimeNotifier = (*BusNotifier)(nil)
	_ providers.RealtimeNotifier = (*FanoutNotifier)(nil)
)
