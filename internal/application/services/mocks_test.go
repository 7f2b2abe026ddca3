package services_test

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/mock"

	"github.com/servicehub/bookingengine/internal/adapters/cache"
	"github.com/servicehub/bookingengine/internal/adapters/memory"
	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
)

// Mocks

type MockCacheInvalidator struct {
	mock.Mock
}

func (m *MockCacheInvalidator) InvalidateAvailability(ctx context.Context, providerID string, date *civil.Date) error {
	args := m.Called(ctx, providerID, date)
	return args.Error(0)
}

func (m *MockCacheInvalidator) InvalidateAvailabilityWeekday(ctx context.Context, providerID string, weekday time.Weekday) error {
	args := m.Called(ctx, providerID, weekday)
	return args.Error(0)
}

func (m *MockCacheInvalidator) InvalidateProvider(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}

type MockRealtimeNotifier struct {
	mock.Mock
}

func (m *MockRealtimeNotifier) NotifyBookingStatusChange(ctx context.Context, bookingID string, status entities.BookingStatus, customerID, providerID string) error {
	args := m.Called(ctx, bookingID, status, customerID, providerID)
	return args.Error(0)
}

func (m *MockRealtimeNotifier) NotifyNewBooking(ctx context.Context, booking *entities.Booking, providerID string) error {
	args := m.Called(ctx, booking, providerID)
	return args.Error(0)
}

func (m *MockRealtimeNotifier) NotifyAvailabilityChange(ctx context.Context, providerID string, date civil.Date, slots []entities.Slot) error {
	args := m.Called(ctx, providerID, date, slots)
	return args.Error(0)
}

type MockSlotCache struct {
	mock.Mock
}

func (m *MockSlotCache) GetSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, bool, error) {
	args := m.Called(ctx, providerID, serviceID, date)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]entities.Slot), args.Bool(1), args.Error(2)
}

func (m *MockSlotCache) Generation(ctx context.Context, providerID string, date civil.Date) (providers.SlotGeneration, error) {
	args := m.Called(ctx, providerID, date)
	return args.Get(0).(providers.SlotGeneration), args.Error(1)
}

func (m *MockSlotCache) SetSlots(ctx context.Context, providerID, serviceID string, date civil.Date, gen providers.SlotGeneration, slots []entities.Slot) error {
	args := m.Called(ctx, providerID, serviceID, date, gen, slots)
	return args.Error(0)
}

// MockPersistenceGateway only backs the calls a test sets expectations for
type MockPersistenceGateway struct {
	mock.Mock
}

func (m *MockPersistenceGateway) LoadBookingsForProviderDate(ctx context.Context, providerID string, date civil.Date) ([]*entities.Booking, error) {
	args := m.Called(ctx, providerID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockPersistenceGateway) CreateBookingAtomic(ctx context.Context, booking *entities.Booking, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	args := m.Called(ctx, booking, conflictCheck)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Booking), args.Error(1)
}

func (m *MockPersistenceGateway) UpdateBookingStatus(ctx context.Context, id string, update repositories.StatusUpdate, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	args := m.Called(ctx, id, update, conflictCheck)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Booking), args.Error(1)
}

func (m *MockPersistenceGateway) LoadAvailabilityRules(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AvailabilityRule), args.Error(1)
}

func (m *MockPersistenceGateway) LoadBlockedTimes(ctx context.Context, providerID string, dateRange entities.DateRange) ([]*entities.BlockedTime, error) {
	args := m.Called(ctx, providerID, dateRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BlockedTime), args.Error(1)
}

func (m *MockPersistenceGateway) GetBooking(ctx context.Context, id string) (*entities.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Booking), args.Error(1)
}

func (m *MockPersistenceGateway) ListBookings(ctx context.Context, filter entities.BookingFilter) ([]*entities.Booking, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockPersistenceGateway) GetProvider(ctx context.Context, id string) (*entities.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Provider), args.Error(1)
}

func (m *MockPersistenceGateway) GetService(ctx context.Context, id string) (*entities.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Service), args.Error(1)
}

func (m *MockPersistenceGateway) ReplaceAvailabilityRules(ctx context.Context, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error) {
	args := m.Called(ctx, providerID, rules)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AvailabilityRule), args.Error(1)
}

func (m *MockPersistenceGateway) CreateBlockedTime(ctx context.Context, block *entities.BlockedTime) (*entities.BlockedTime, error) {
	args := m.Called(ctx, block)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BlockedTime), args.Error(1)
}

func (m *MockPersistenceGateway) DeleteBlockedTime(ctx context.Context, providerID, blockedTimeID string) (*entities.BlockedTime, error) {
	args := m.Called(ctx, providerID, blockedTimeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BlockedTime), args.Error(1)
}

// mapCacheProvider is an in-process CacheProvider with glob deletes
type mapCacheProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCacheProvider() *mapCacheProvider {
	return &mapCacheProvider{data: make(map[string][]byte)}
}

func (m *mapCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *mapCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapCacheProvider) DeletePattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mapCacheProvider) Increment(ctx context.Context, key string, expirationSeconds int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if raw, ok := m.data[key]; ok {
		var err error
		if n, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return 0, errors.New("value is not an integer")
		}
	}
	n++
	m.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (m *mapCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// pausingGateway holds the next bookings read open after it has loaded,
// until the test releases it
type pausingGateway struct {
	*memory.Gateway
	armed  atomic.Bool
	loaded chan struct{}
	resume chan struct{}
}

func newPausingGateway(gw *memory.Gateway) *pausingGateway {
	return &pausingGateway{Gateway: gw, loaded: make(chan struct{}), resume: make(chan struct{})}
}

func (g *pausingGateway) pauseNextRead() {
	g.armed.Store(true)
}

func (g *pausingGateway) LoadBookingsForProviderDate(ctx context.Context, providerID string, date civil.Date) ([]*entities.Booking, error) {
	bookings, err := g.Gateway.LoadBookingsForProviderDate(ctx, providerID, date)
	if g.armed.CompareAndSwap(true, false) {
		close(g.loaded)
		<-g.resume
	}
	return bookings, err
}
