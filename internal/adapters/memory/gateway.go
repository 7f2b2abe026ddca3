package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// Gateway is a PersistenceGateway held in process memory. A single mutex
// serializes writes, which gives CreateBookingAtomic and UpdateBookingStatus
// the same check-and-write guarantee the postgres gateway gets from locks.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]*entities.Provider
	services  map[string]*entities.Service
	rules     map[string][]*entities.AvailabilityRule
	blocks    map[string]*entities.BlockedTime
	bookings  map[string]*entities.Booking
	now       func() time.Time
}

// NewGateway creates an empty in-memory gateway
func NewGateway() *Gateway {
	return &Gateway{
		providers: make(map[string]*entities.Provider),
		services:  make(map[string]*entities.Service),
		rules:     make(map[string][]*entities.AvailabilityRule),
		blocks:    make(map[string]*entities.BlockedTime),
		bookings:  make(map[string]*entities.Booking),
		now:       time.Now,
	}
}

// PutProvider stores or replaces a provider
func (g *Gateway) PutProvider(p *entities.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := *p
	g.providers[p.ID] = &c
}

// PutService stores or replaces a service
func (g *Gateway) PutService(s *entities.Service) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := *s
	g.services[s.ID] = &c
}

// PutBooking stores a booking as-is, bypassing every check
func (g *Gateway) PutBooking(b *entities.Booking) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bookings[b.ID] = b.Clone()
}

func (g *Gateway) LoadBookingsForProviderDate(ctx context.Context, providerID string, date civil.Date) ([]*entities.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bookingsOn(providerID, date), nil
}

// bookingsOn must be called with the lock held
func (g *Gateway) bookingsOn(providerID string, date civil.Date) []*entities.Booking {
	out := []*entities.Booking{}
	for _, b := range g.bookings {
		if b.ProviderID == providerID && b.ScheduledDate == date {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime != out[j].ScheduledTime {
			return out[i].ScheduledTime < out[j].ScheduledTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Gateway) CreateBookingAtomic(ctx context.Context, booking *entities.Booking, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if conflictCheck != nil {
		if err := conflictCheck(g.bookingsOn(booking.ProviderID, booking.ScheduledDate)); err != nil {
			return nil, err
		}
	}

	stored := booking.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, exists := g.bookings[stored.ID]; exists {
		return nil, apperrors.NewConflictError(fmt.Sprintf("booking %s already exists", stored.ID))
	}
	now := g.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	g.bookings[stored.ID] = stored
	return stored.Clone(), nil
}

func (g *Gateway) UpdateBookingStatus(ctx context.Context, id string, update repositories.StatusUpdate, conflictCheck repositories.ConflictCheck) (*entities.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.bookings[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	if current.Status != update.Expected {
		return nil, apperrors.NewInvalidTransitionError(string(current.Status), string(update.Action))
	}

	next := current.Clone()
	if update.Window != nil {
		next.ScheduledDate = update.Window.Date
		next.ScheduledTime = update.Window.Start
		next.EndTime = update.Window.End
	}
	if update.NeedsConflictCheck() && conflictCheck != nil {
		if err := conflictCheck(g.bookingsOn(next.ProviderID, next.ScheduledDate)); err != nil {
			return nil, err
		}
	}

	next.Status = update.Status
	if update.CancellationReason != "" {
		next.CancellationReason = update.CancellationReason
	}
	if update.CancelledBy != "" {
		next.CancelledBy = update.CancelledBy
	}
	if update.Proposed != nil {
		date, start := update.Proposed.Date, update.Proposed.Start
		next.ProposedDate = &date
		next.ProposedTime = &start
	}
	if update.ClearProposed {
		next.ProposedDate = nil
		next.ProposedTime = nil
	}
	next.UpdatedAt = update.At
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = g.now()
	}

	g.bookings[id] = next
	return next.Clone(), nil
}

func (g *Gateway) LoadAvailabilityRules(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*entities.AvailabilityRule, 0, len(g.rules[providerID]))
	for _, r := range g.rules[providerID] {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (g *Gateway) LoadBlockedTimes(ctx context.Context, providerID string, dateRange entities.DateRange) ([]*entities.BlockedTime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []*entities.BlockedTime{}
	for _, b := range g.blocks {
		if b.ProviderID != providerID {
			continue
		}
		if dateRange.Contains(b.Date) || (b.IsRecurring && !b.Date.After(dateRange.To)) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (g *Gateway) GetBooking(ctx context.Context, id string) (*entities.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	b, ok := g.bookings[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	return b.Clone(), nil
}

func (g *Gateway) ListBookings(ctx context.Context, filter entities.BookingFilter) ([]*entities.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []*entities.Booking{}
	for _, b := range g.bookings {
		if matches(b, filter) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate != out[j].ScheduledDate {
			return out[i].ScheduledDate.After(out[j].ScheduledDate)
		}
		if out[i].ScheduledTime != out[j].ScheduledTime {
			return out[i].ScheduledTime > out[j].ScheduledTime
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entities.Booking{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(b *entities.Booking, f entities.BookingFilter) bool {
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	if f.From != nil && b.ScheduledDate.Before(*f.From) {
		return false
	}
	if f.To != nil && b.ScheduledDate.After(*f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if b.Status == s {
			return true
		}
	}
	return false
}

func (g *Gateway) GetProvider(ctx context.Context, id string) (*entities.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.providers[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider %s not found", id))
	}
	c := *p
	return &c, nil
}

func (g *Gateway) GetService(ctx context.Context, id string) (*entities.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.services[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("service %s not found", id))
	}
	c := *s
	return &c, nil
}

func (g *Gateway) ReplaceAvailabilityRules(ctx context.Context, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := make([]*entities.AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		c := *r
		c.ProviderID = providerID
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		stored = append(stored, &c)
	}
	sort.SliceStable(stored, func(i, j int) bool {
		if stored[i].DayOfWeek != stored[j].DayOfWeek {
			return stored[i].DayOfWeek < stored[j].DayOfWeek
		}
		return stored[i].StartTime < stored[j].StartTime
	})
	g.rules[providerID] = stored

	out := make([]*entities.AvailabilityRule, 0, len(stored))
	for _, r := range stored {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (g *Gateway) CreateBlockedTime(ctx context.Context, block *entities.BlockedTime) (*entities.BlockedTime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	c := *block
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = g.now()
	}
	g.blocks[c.ID] = &c
	out := c
	return &out, nil
}

func (g *Gateway) DeleteBlockedTime(ctx context.Context, providerID, blockedTimeID string) (*entities.BlockedTime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.blocks[blockedTimeID]
	if !ok || b.ProviderID != providerID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("blocked time %s not found", blockedTimeID))
	}
	delete(g.blocks, blockedTimeID)
	return b, nil
}

var _ repositories.PersistenceGateway = (*Gateway)(nil)
