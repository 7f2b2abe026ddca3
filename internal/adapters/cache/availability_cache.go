package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
)

const (
	keyPrefix        = "availability"
	generationPrefix = "availability-gen"
)

// providerNamespaces are the key prefixes whose second segment is a provider id
var providerNamespaces = []string{keyPrefix}

// AvailabilityCache stores generated slots in a CacheProvider and drops them on invalidation.
//
// Keys have the form availability:{provider}:{weekday}:{date}:{service} so a
// date, a weekday or a whole provider can each be removed with one pattern.
//
// Deleting keys alone cannot stop a reader that loaded its inputs before a
// booking committed from writing its result after the invalidation. Every
// entry therefore carries the generation it was computed in, and each
// invalidation bumps a counter: availability-gen:{provider}:{date} for a single
// date, availability-gen:{provider} for wider scopes. An entry is only served
// while both counters still match.
type AvailabilityCache struct {
	cache         providers.CacheProvider
	ttl           time.Duration
	generationTTL time.Duration
}

// NewAvailabilityCache creates a slot cache whose entries expire after ttl
func NewAvailabilityCache(cache providers.CacheProvider, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &AvailabilityCache{
		cache: cache,
		ttl:   ttl,
		// counters must outlive every entry stamped with them
		generationTTL: max(24*time.Hour, 2*ttl),
	}
}

// SlotKey returns the cache key of one provider, service and date
func SlotKey(providerID, serviceID string, date civil.Date) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", keyPrefix, providerID, entities.Weekday(date), date, serviceID)
}

func providerGenerationKey(providerID string) string {
	return fmt.Sprintf("%s:%s", generationPrefix, providerID)
}

func dateGenerationKey(providerID string, date civil.Date) string {
	return fmt.Sprintf("%s:%s:%s", generationPrefix, providerID, date)
}

type cachedSlots struct {
	Generation providers.SlotGeneration `json:"generation"`
	Slots      []entities.Slot          `json:"slots"`
}

// Generation returns the current generation of a provider date. Missing counters read as zero.
func (c *AvailabilityCache) Generation(ctx context.Context, providerID string, date civil.Date) (providers.SlotGeneration, error) {
	var gen providers.SlotGeneration
	var err error
	if gen.Provider, err = c.counter(ctx, providerGenerationKey(providerID)); err != nil {
		return gen, err
	}
	if gen.Date, err = c.counter(ctx, dateGenerationKey(providerID, date)); err != nil {
		return gen, err
	}
	return gen, nil
}

func (c *AvailabilityCache) counter(ctx context.Context, key string) (int64, error) {
	data, err := c.cache.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) || (err == nil && data == nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to decode generation %s: %w", key, err)
	}
	return n, nil
}

// GetSlots returns cached slots of the current generation. A miss or an entry
// from an older generation is reported as ok=false with a nil error.
func (c *AvailabilityCache) GetSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, bool, error) {
	current, err := c.Generation(ctx, providerID, date)
	if err != nil {
		return nil, false, err
	}

	data, err := c.cache.Get(ctx, SlotKey(providerID, serviceID, date))
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	var payload cachedSlots
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached slots: %w", err)
	}
	if payload.Generation != current {
		return nil, false, nil
	}
	if payload.Slots == nil {
		payload.Slots = []entities.Slot{}
	}
	return payload.Slots, true, nil
}

// SetSlots caches slots computed in gen for the configured ttl
func (c *AvailabilityCache) SetSlots(ctx context.Context, providerID, serviceID string, date civil.Date, gen providers.SlotGeneration, slots []entities.Slot) error {
	data, err := json.Marshal(cachedSlots{Generation: gen, Slots: slots})
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}
	return c.cache.Set(ctx, SlotKey(providerID, serviceID, date), data, int(c.ttl.Seconds()))
}

// InvalidateAvailability drops every service's slots for date, or for all dates when date is nil
func (c *AvailabilityCache) InvalidateAvailability(ctx context.Context, providerID string, date *civil.Date) error {
	if date == nil {
		return c.invalidate(ctx, providerGenerationKey(providerID), fmt.Sprintf("%s:%s:*", keyPrefix, providerID))
	}
	return c.invalidate(ctx,
		dateGenerationKey(providerID, *date),
		fmt.Sprintf("%s:%s:%d:%s:*", keyPrefix, providerID, entities.Weekday(*date), *date),
	)
}

// InvalidateAvailabilityWeekday drops slots of every date falling on weekday
func (c *AvailabilityCache) InvalidateAvailabilityWeekday(ctx context.Context, providerID string, weekday time.Weekday) error {
	return c.invalidate(ctx, providerGenerationKey(providerID), fmt.Sprintf("%s:%s:%d:*", keyPrefix, providerID, weekday))
}

// InvalidateProvider drops every cached entry that belongs to the provider
func (c *AvailabilityCache) InvalidateProvider(ctx context.Context, providerID string) error {
	if _, err := c.cache.Increment(ctx, providerGenerationKey(providerID), int(c.generationTTL.Seconds())); err != nil {
		return err
	}
	for _, namespace := range providerNamespaces {
		if _, err := c.cache.DeletePattern(ctx, fmt.Sprintf("%s:%s:*", namespace, providerID)); err != nil {
			return err
		}
	}
	return nil
}

// invalidate bumps the generation first so in-flight writers are already stale,
// then removes the entries the pattern covers
func (c *AvailabilityCache) invalidate(ctx context.Context, generationKey, pattern string) error {
	if _, err := c.cache.Increment(ctx, generationKey, int(c.generationTTL.Seconds())); err != nil {
		return err
	}
	_, err := c.cache.DeletePattern(ctx, pattern)
	return err
}

var (
	_ providers.SlotCache        = (*AvailabilityCache)(nil)
	_ providers.CacheInvalidator = (*AvailabilityCache)(nil)
)
