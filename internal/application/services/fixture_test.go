package services_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/bookingengine/internal/adapters/memory"
	"github.com/servicehub/bookingengine/internal/application/services"
	"github.com/servicehub/bookingengine/internal/domain/entities"
)

const (
	providerID = "provider-1"
	serviceID  = "service-1"
	customerID = "customer-1"
)

var (
	monday     = civil.Date{Year: 2026, Month: time.March, Day: 2}
	sundayNoon = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	customer      = entities.Actor{ID: customerID, Role: entities.ActorRoleCustomer}
	provider      = entities.Actor{ID: providerID, Role: entities.ActorRoleProvider}
	otherCustomer = entities.Actor{ID: "customer-2", Role: entities.ActorRoleCustomer}
)

func hm(s string) entities.TimeOfDay {
	return entities.MustParseTimeOfDay(s)
}

func hmPtr(s string) *entities.TimeOfDay {
	t := hm(s)
	return &t
}

func starts(slots []entities.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String())
	}
	return out
}

type fixture struct {
	gateway      *memory.Gateway
	invalidator  *MockCacheInvalidator
	notifier     *MockRealtimeNotifier
	availability *services.AvailabilityService
	engine       *services.BookingEngine
	now          time.Time
}

// newFixture seeds one active provider with a 60 minute service and Monday 09:00-12:00 hours
func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := memory.NewGateway()
	gw.PutProvider(&entities.Provider{ID: providerID, Name: "Ada's Studio", IsActive: true})
	gw.PutService(&entities.Service{ID: serviceID, ProviderID: providerID, Name: "Haircut", DurationMinutes: 60, Price: 4500, IsActive: true})
	gw.PutProvider(&entities.Provider{ID: "provider-2", Name: "Other", IsActive: true})
	gw.PutService(&entities.Service{ID: "service-2", ProviderID: "provider-2", Name: "Massage", DurationMinutes: 30, Price: 3000, IsActive: true})
	_, err := gw.ReplaceAvailabilityRules(context.Background(), providerID, []*entities.AvailabilityRule{
		{DayOfWeek: time.Monday, StartTime: hm("09:00"), EndTime: hm("12:00"), IsAvailable: true},
	})
	require.NoError(t, err)

	f := &fixture{
		gateway:     gw,
		invalidator: new(MockCacheInvalidator),
		notifier:    new(MockRealtimeNotifier),
		now:         sundayNoon,
	}
	f.invalidator.On("InvalidateAvailability", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.invalidator.On("InvalidateAvailabilityWeekday", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.invalidator.On("InvalidateProvider", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("NotifyBookingStatusChange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("NotifyNewBooking", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("NotifyAvailabilityChange", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := services.DefaultEngineConfig()
	f.availability = services.NewAvailabilityService(gw, nil, f.invalidator, f.notifier, cfg, nil)
	f.engine = services.NewBookingEngine(gw, f.availability, f.invalidator, f.notifier, cfg, nil).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) book(t *testing.T, at string) *entities.Booking {
	t.Helper()
	b, err := f.engine.Create(context.Background(), customer, services.CreateBookingInput{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       monday,
		Time:       hm(at),
	})
	require.NoError(t, err)
	return b
}

// confirmed creates and accepts a booking at the given time
func (f *fixture) confirmed(t *testing.T, at string) *entities.Booking {
	t.Helper()
	b, err := f.engine.Accept(context.Background(), provider, f.book(t, at).ID)
	require.NoError(t, err)
	return b
}
