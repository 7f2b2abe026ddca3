package providers

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/servicehub/bookingengine/internal/domain/entities"
)

// SlotGeneration identifies the invalidation epoch a provider date's slots were computed in.
// Every invalidation covering the date moves it forward.
type SlotGeneration struct {
	Provider int64 `json:"provider"`
	Date     int64 `json:"date"`
}

// SlotCache stores generated slots for a provider, service and date
type SlotCache interface {
	// Generation returns the current epoch of a provider date. Callers read it
	// before loading the inputs they generate slots from.
	Generation(ctx context.Context, providerID string, date civil.Date) (SlotGeneration, error)

	// GetSlots returns the cached slots and whether they were present in the current generation
	GetSlots(ctx context.Context, providerID, serviceID string, date civil.Date) ([]entities.Slot, bool, error)

	// SetSlots caches slots computed in gen. Entries from an older generation are never served.
	SetSlots(ctx context.Context, providerID, serviceID string, date civil.Date, gen SlotGeneration, slots []entities.Slot) error
}
