package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
	"github.com/servicehub/bookingengine/internal/domain/repositories"
	"github.com/servicehub/bookingengine/internal/domain/scheduling"
	"github.com/servicehub/bookingengine/internal/infrastructure/observability"
	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// AvailabilityService derives open slots and manages weekly rules and blocked times
type AvailabilityService struct {
	gateway     repositories.PersistenceGateway
	slotCache   providers.SlotCache
	invalidator providers.CacheInvalidator
	notifier    providers.RealtimeNotifier
	cfg         EngineConfig
	effects     sideEffects
	metrics     *observability.Metrics
}

// NewAvailabilityService creates a new availability service. slotCache,
// invalidator and notifier may be nil.
func NewAvailabilityService(
	gateway repositories.PersistenceGateway,
	slotCache providers.SlotCache,
	invalidator providers.CacheInvalidator,
	notifier providers.RealtimeNotifier,
	cfg EngineConfig,
	metrics *observability.Metrics,
) *AvailabilityService {
	cfg = cfg.withDefaults()
	return &AvailabilityService{
		gateway:     gateway,
		slotCache:   slotCache,
		invalidator: invalidator,
		notifier:    notifier,
		cfg:         cfg,
		effects:     sideEffects{timeout: cfg.SideEffectTimeout, metrics: metrics},
		metrics:     metrics,
	}
}

// GenerateSlots returns the open slots of a provider's service on date
func (s *AvailabilityService) GenerateSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, error) {
	ctx, span := observability.StartSpan(ctx, "AvailabilityService.GenerateSlots")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("provider.id", providerID),
		attribute.String("service.id", serviceID),
		attribute.String("date", date.String()),
	)

	if !date.IsValid() {
		return nil, apperrors.NewValidationError("date is invalid")
	}

	provider, service, err := s.resolve(ctx, providerID, serviceID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if !provider.IsActive || !service.IsActive {
		return []entities.Slot{}, nil
	}

	started := time.Now()
	if slots, ok := s.cachedSlots(ctx, providerID, serviceID, date); ok {
		observability.RecordSlotGeneration(ctx, s.metrics, true, time.Since(started))
		return slots, nil
	}

	// The generation is captured before reading bookings so an invalidation
	// that lands while this runs makes the stored entry stale.
	gen, cacheable := s.slotGeneration(ctx, providerID, date)

	in, err := s.loadDay(ctx, providerID, date)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	slots := scheduling.GenerateSlots(in, service.DurationMinutes)
	observability.RecordSlotGeneration(ctx, s.metrics, false, time.Since(started))

	if cacheable {
		if err := s.slotCache.SetSlots(ctx, providerID, serviceID, date, gen, slots); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("provider_id", providerID).Msg("Failed to cache slots")
		}
	}
	return slots, nil
}

func (s *AvailabilityService) slotGeneration(ctx context.Context, providerID string, date civil.Date) (providers.SlotGeneration, bool) {
	if s.slotCache == nil {
		return providers.SlotGeneration{}, false
	}
	gen, err := s.slotCache.Generation(ctx, providerID, date)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("provider_id", providerID).Msg("Slot cache generation unavailable, skipping store")
		return providers.SlotGeneration{}, false
	}
	return gen, true
}

func (s *AvailabilityService) cachedSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, bool) {
	if s.slotCache == nil {
		return nil, false
	}
	slots, ok, err := s.slotCache.GetSlots(ctx, providerID, serviceID, date)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("provider_id", providerID).Msg("Slot cache read failed")
		return nil, false
	}
	if !ok {
		observability.RecordCacheMiss(ctx, s.metrics, "slots")
		return nil, false
	}
	observability.RecordCacheHit(ctx, s.metrics, "slots")
	return slots, true
}

// HasConflict reports whether [start, end) on date overlaps a non-cancelled booking of the provider
func (s *AvailabilityService) HasConflict(ctx context.Context, providerID string, date civil.Date, start, end entities.TimeOfDay, excludeBookingID string) (bool, error) {
	bookings, err := persist(ctx, s.cfg, s.metrics, "load bookings", func(ctx context.Context) ([]*entities.Booking, error) {
		return s.gateway.LoadBookingsForProviderDate(ctx, providerID, date)
	})
	if err != nil {
		return false, err
	}
	window := entities.TimeWindow{Date: date, Start: start, End: end}
	return scheduling.HasConflict(bookings, window, excludeBookingID), nil
}

// OpenWindows returns the provider's free time on date regardless of service
func (s *AvailabilityService) OpenWindows(ctx context.Context, providerID string, date civil.Date) ([]entities.Slot, error) {
	in, err := s.loadDay(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	return intervalsToSlots(scheduling.OpenIntervals(in)), nil
}

// GetAvailability returns the provider's weekly rules
func (s *AvailabilityService) GetAvailability(ctx context.Context, providerID string) ([]*entities.AvailabilityRule, error) {
	if _, err := s.getProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return persist(ctx, s.cfg, s.metrics, "load availability rules", func(ctx context.Context) ([]*entities.AvailabilityRule, error) {
		return s.gateway.LoadAvailabilityRules(ctx, providerID)
	})
}

// SetAvailability replaces the provider's whole week of rules
func (s *AvailabilityService) SetAvailability(ctx context.Context, actor entities.Actor, providerID string, rules []*entities.AvailabilityRule) ([]*entities.AvailabilityRule, error) {
	ctx, span := observability.StartSpan(ctx, "AvailabilityService.SetAvailability")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("provider.id", providerID), attribute.Int("rules.count", len(rules)))

	if err := requireProvider(actor, providerID); err != nil {
		return nil, err
	}
	for i, rule := range rules {
		if rule == nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("rule %d is empty", i))
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	if _, err := s.getProvider(ctx, providerID); err != nil {
		return nil, err
	}

	stored, err := persist(ctx, s.cfg, s.metrics, "replace availability rules", func(ctx context.Context) ([]*entities.AvailabilityRule, error) {
		return s.gateway.ReplaceAvailabilityRules(ctx, providerID, rules)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if s.invalidator != nil {
		s.effects.run(ctx, "invalidate_availability", func(ctx context.Context) error {
			return s.invalidator.InvalidateAvailability(ctx, providerID, nil)
		})
		s.effects.run(ctx, "invalidate_provider", func(ctx context.Context) error {
			return s.invalidator.InvalidateProvider(ctx, providerID)
		})
	}

	observability.LoggerFromContext(ctx).Info().
		Str("provider_id", providerID).
		Int("rules", len(stored)).
		Msg("Availability replaced")
	return stored, nil
}

// ListBlockedTimes returns the blocks affecting any date in [from, to]
func (s *AvailabilityService) ListBlockedTimes(ctx context.Context, providerID string, from, to civil.Date) ([]*entities.BlockedTime, error) {
	if to.Before(from) {
		return nil, apperrors.NewValidationError("to must not be before from")
	}
	if _, err := s.getProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return persist(ctx, s.cfg, s.metrics, "load blocked times", func(ctx context.Context) ([]*entities.BlockedTime, error) {
		return s.gateway.LoadBlockedTimes(ctx, providerID, entities.DateRange{From: from, To: to})
	})
}

// BlockTime stores a new block for the provider
func (s *AvailabilityService) BlockTime(ctx context.Context, actor entities.Actor, providerID string, block *entities.BlockedTime) (*entities.BlockedTime, error) {
	ctx, span := observability.StartSpan(ctx, "AvailabilityService.BlockTime")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("provider.id", providerID))

	if err := requireProvider(actor, providerID); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, apperrors.NewValidationError("blocked time is required")
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.getProvider(ctx, providerID); err != nil {
		return nil, err
	}

	toStore := *block
	toStore.ProviderID = providerID
	stored, err := persist(ctx, s.cfg, s.metrics, "create blocked time", func(ctx context.Context) (*entities.BlockedTime, error) {
		return s.gateway.CreateBlockedTime(ctx, &toStore)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.afterBlockChange(ctx, stored)
	observability.LoggerFromContext(ctx).Info().
		Str("provider_id", providerID).
		Str("blocked_time_id", stored.ID).
		Bool("recurring", stored.IsRecurring).
		Msg("Time blocked")
	return stored, nil
}

// UnblockTime removes one of the provider's blocks
func (s *AvailabilityService) UnblockTime(ctx context.Context, actor entities.Actor, providerID, blockedTimeID string) error {
	ctx, span := observability.StartSpan(ctx, "AvailabilityService.UnblockTime")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("provider.id", providerID), attribute.String("blocked_time.id", blockedTimeID))

	if err := requireProvider(actor, providerID); err != nil {
		return err
	}
	removed, err := persist(ctx, s.cfg, s.metrics, "delete blocked time", func(ctx context.Context) (*entities.BlockedTime, error) {
		return s.gateway.DeleteBlockedTime(ctx, providerID, blockedTimeID)
	})
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	s.afterBlockChange(ctx, removed)
	observability.LoggerFromContext(ctx).Info().
		Str("provider_id", providerID).
		Str("blocked_time_id", blockedTimeID).
		Msg("Time unblocked")
	return nil
}

// afterBlockChange invalidates every date the block affects and publishes the block date's open windows
func (s *AvailabilityService) afterBlockChange(ctx context.Context, block *entities.BlockedTime) {
	if s.invalidator != nil {
		if block.IsRecurring {
			s.effects.run(ctx, "invalidate_availability", func(ctx context.Context) error {
				return s.invalidator.InvalidateAvailabilityWeekday(ctx, block.ProviderID, entities.Weekday(block.Date))
			})
		} else {
			date := block.Date
			s.effects.run(ctx, "invalidate_availability", func(ctx context.Context) error {
				return s.invalidator.InvalidateAvailability(ctx, block.ProviderID, &date)
			})
		}
	}
	s.notifyOpenWindows(ctx, block.ProviderID, block.Date)
}

// notifyOpenWindows publishes the recomputed free time of a provider date
func (s *AvailabilityService) notifyOpenWindows(ctx context.Context, providerID string, date civil.Date) {
	if s.notifier == nil {
		return
	}
	s.effects.run(ctx, "notify_availability_change", func(ctx context.Context) error {
		windows, err := s.OpenWindows(ctx, providerID, date)
		if err != nil {
			return err
		}
		return s.notifier.NotifyAvailabilityChange(ctx, providerID, date, windows)
	})
}

// loadDay reads everything slot generation needs for one provider date, bypassing the slot cache
func (s *AvailabilityService) loadDay(ctx context.Context, providerID string, date civil.Date) (scheduling.DayInputs, error) {
	in := scheduling.DayInputs{Date: date}

	rules, err := persist(ctx, s.cfg, s.metrics, "load availability rules", func(ctx context.Context) ([]*entities.AvailabilityRule, error) {
		return s.gateway.LoadAvailabilityRules(ctx, providerID)
	})
	if err != nil {
		return in, err
	}
	in.Rules = rules

	blocks, err := persist(ctx, s.cfg, s.metrics, "load blocked times", func(ctx context.Context) ([]*entities.BlockedTime, error) {
		return s.gateway.LoadBlockedTimes(ctx, providerID, entities.SingleDay(date))
	})
	if err != nil {
		return in, err
	}
	in.Blocks = blocks

	bookings, err := persist(ctx, s.cfg, s.metrics, "load bookings", func(ctx context.Context) ([]*entities.Booking, error) {
		return s.gateway.LoadBookingsForProviderDate(ctx, providerID, date)
	})
	if err != nil {
		return in, err
	}
	in.Bookings = bookings
	return in, nil
}

// resolve loads the provider and a service it owns
func (s *AvailabilityService) resolve(ctx context.Context, providerID, serviceID string) (*entities.Provider, *entities.Service, error) {
	provider, err := s.getProvider(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}
	service, err := persist(ctx, s.cfg, s.metrics, "get service", func(ctx context.Context) (*entities.Service, error) {
		return s.gateway.GetService(ctx, serviceID)
	})
	if err != nil {
		return nil, nil, err
	}
	if service.ProviderID != providerID {
		return nil, nil, apperrors.NewNotFoundError(fmt.Sprintf("service %s not found for provider %s", serviceID, providerID))
	}
	return provider, service, nil
}

func (s *AvailabilityService) getProvider(ctx context.Context, providerID string) (*entities.Provider, error) {
	return persist(ctx, s.cfg, s.metrics, "get provider", func(ctx context.Context) (*entities.Provider, error) {
		return s.gateway.GetProvider(ctx, providerID)
	})
}

func requireProvider(actor entities.Actor, providerID string) error {
	if actor.Role != entities.ActorRoleProvider || actor.ID == "" || actor.ID != providerID {
		return apperrors.NewUnauthorizedError("only the provider can change its availability")
	}
	return nil
}

func intervalsToSlots(intervals []scheduling.Interval) []entities.Slot {
	slots := make([]entities.Slot, 0, len(intervals))
	for _, in := range intervals {
		slots = append(slots, entities.Slot{Start: in.Start, End: in.End})
	}
	return slots
}
