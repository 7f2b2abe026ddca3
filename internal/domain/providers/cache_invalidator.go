package providers

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// CacheInvalidator drops cached availability after a committed mutation
type CacheInvalidator interface {
	// InvalidateAvailability drops cached slots for one date, or for every date when date is nil
	InvalidateAvailability(ctx context.Context, providerID string, date *civil.Date) error

	// InvalidateAvailabilityWeekday drops cached slots for every occurrence of weekday
	InvalidateAvailabilityWeekday(ctx context.Context, providerID string, weekday time.Weekday) error

	// InvalidateProvider drops every cached entry of the provider
	InvalidateProvider(ctx context.Context, providerID string) error
}
